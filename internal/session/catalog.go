package session

// Conditions is the fixed catalog of health conditions offered during
// onboarding. Submissions may only select from this list.
var Conditions = []string{
	// Long-Covid and related
	"Long-Covid / Post-Covid Syndrome",
	"Post-Viral Syndrome",
	"Myalgic Encephalomyelitis (ME)",
	"Chronic Fatigue Syndrome (CFS)",
	"ME/CFS",

	// Dysautonomia conditions
	"POTS (Postural Orthostatic Tachycardia Syndrome)",
	"Neurocardiogenic Syncope",
	"Orthostatic Hypotension",
	"Inappropriate Sinus Tachycardia",
	"Other Dysautonomia Condition",

	// Common comorbidities
	"Ehlers-Danlos Syndrome",
	"Mast Cell Activation Syndrome (MCAS)",
	"Small Fiber Neuropathy",
	"Fibromyalgia",
	"Gastroparesis",
	"Autoimmune Conditions",

	// Neurological
	"Brain Fog / Cognitive Dysfunction",
	"Migraine / Headache Disorders",
	"Neuropathy",

	// Respiratory/cardiac
	"Exercise Intolerance",
	"Shortness of Breath / Dyspnea",
	"Palpitations / Tachycardia",

	// Other
	"Chronic Pain",
	"Sleep Disorders",
	"Anxiety / Depression",
	"Other (please specify in preferences)",
}

// HowHeardOptions is the fixed catalog for the marketing-attribution field.
var HowHeardOptions = []string{
	"Social Media (Facebook, Instagram, Twitter)",
	"Reddit",
	"Support Group",
	"Healthcare Provider",
	"Friend or Family",
	"Search Engine (Google, Bing)",
	"Online Article or Blog",
	"Other",
}

var conditionSet = func() map[string]bool {
	m := make(map[string]bool, len(Conditions))
	for _, c := range Conditions {
		m[c] = true
	}
	return m
}()

// IsKnownCondition reports whether the value is in the conditions catalog.
func IsKnownCondition(v string) bool {
	return conditionSet[v]
}
