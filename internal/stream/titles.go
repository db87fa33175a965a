package stream

var defaultTitles = [MaxSection]string{
	"Quick Answer",
	"From Our Knowledge Base",
	"Medical Literature",
	"Current Information",
	"Research Summary",
}

// DefaultSectionTitle returns the placeholder title a slot shows before the
// stream names it.
func DefaultSectionTitle(index int) string {
	if index >= MinSection && index <= MaxSection {
		return defaultTitles[index-1]
	}
	return ""
}
