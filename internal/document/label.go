package document

import "fmt"

// DisplayLabel is the title shown for a template in listings.
func DisplayLabel(t Template) string {
	if t.EffectiveDate != nil {
		return fmt.Sprintf("[%s] %s, (from %s)", t.Type, t.Name, t.EffectiveDate.UTC().Format(DateLayout))
	}
	return fmt.Sprintf("[%s] %s", t.Type, t.Name)
}
