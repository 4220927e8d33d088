package fetcher

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/policywatch/policywatch/fetch"
	"github.com/policywatch/policywatch/sdk"
)

// builtinHandler describes one entry of the builtin handler table.
type builtinHandler struct {
	key        string
	sourceType sdk.FetchType
	enrich     map[string]interface{}
}

// builtinHandlers is the typed table the registry is populated from at
// startup. One entry per monitored agency; the enrichment tags results
// with the agency so alert emails and stored metadata identify the
// authority behind a page.
var builtinHandlers = []builtinHandler{
	{key: "uk_ukvi_student", sourceType: sdk.FetchTypeHTML, enrich: map[string]interface{}{"agency": "UKVI"}},
	{key: "uk_ukvi_work", sourceType: sdk.FetchTypeHTML, enrich: map[string]interface{}{"agency": "UKVI"}},
	{key: "de_bmi_student", sourceType: sdk.FetchTypeHTML, enrich: map[string]interface{}{"agency": "BMI"}},
	{key: "de_bamf_work", sourceType: sdk.FetchTypeHTML, enrich: map[string]interface{}{"agency": "BAMF"}},
	{key: "ca_ircc_both", sourceType: sdk.FetchTypeHTML, enrich: map[string]interface{}{"agency": "IRCC"}},
	{key: "au_homeaffairs_both", sourceType: sdk.FetchTypeHTML, enrich: map[string]interface{}{"agency": "Home Affairs"}},
	{key: "us_uscis_both", sourceType: sdk.FetchTypeHTML, enrich: map[string]interface{}{"agency": "USCIS"}},
	{key: "us_state_student", sourceType: sdk.FetchTypePDF, enrich: map[string]interface{}{"agency": "DoS"}},
	{key: "nl_ind_both", sourceType: sdk.FetchTypePDF, enrich: map[string]interface{}{"agency": "IND"}},
}

// RegisterBuiltins populates the registry from the builtin handler
// table, binding every entry to the shared retrieval client.
func RegisterBuiltins(log hclog.Logger, r *Registry, client *fetch.Client) error {
	for _, h := range builtinHandlers {
		var f *Fetcher

		switch h.sourceType {
		case sdk.FetchTypePDF:
			f = NewPDFFetcher(h.key, client, h.enrich)
		default:
			f = NewHTMLFetcher(h.key, client, h.enrich)
		}

		if err := r.Register(f); err != nil {
			return err
		}
		log.Debug("registered builtin handler", "key", h.key)
	}
	return nil
}
