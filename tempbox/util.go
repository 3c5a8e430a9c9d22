package tempbox

import (
	"github.com/google/uuid"

	"github.com/ShovonSheikh/temp-box/mailhtml"
)

func newID() string {
	return uuid.NewString()
}

// rewriteMessageHTML scrubs scripts from a fetched HTML body and makes its
// links open externally
func rewriteMessageHTML(html string) (string, error) {
	stripped, err := mailhtml.StripScripts(html)
	if err != nil {
		return "", err
	}
	return mailhtml.ExternalizeLinks(stripped)
}
