package catalog

// Group names used to partition the allow-list.
const (
	// GroupBrowser holds types the client emitter may send.
	GroupBrowser = "browser"

	// GroupIntegration holds types recorded by server-side producers.
	GroupIntegration = "integration"
)

// Definition is one allow-list entry.
type Definition struct {
	// Name is the event type (e.g. "page_view") or a pattern such as "spawn_*".
	Name string `json:"name" yaml:"name"`

	// Description is a human-readable explanation of when this event fires.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Group partitions the allow-list. Browser types are published to the emitter.
	Group string `json:"group,omitempty" yaml:"group,omitempty"`
}

// BrowserDefaults returns the event types the client emitter fires out of the box.
func BrowserDefaults() []Definition {
	return []Definition{
		{Name: "page_view", Group: GroupBrowser, Description: "A page finished loading."},
		{Name: "image_mode", Group: GroupBrowser, Description: "An image browsing page was opened."},
		{Name: "random_click", Group: GroupBrowser, Description: "The random/surprise link was clicked."},
		{Name: "smi_click", Group: GroupBrowser, Description: "A call-to-action button was clicked."},
		{Name: "search", Group: GroupBrowser, Description: "A search form was submitted."},
		{Name: "nav_click", Group: GroupBrowser, Description: "A navigation link was clicked."},
	}
}

// IntegrationDefaults returns the event types recorded by server-side producers.
func IntegrationDefaults() []Definition {
	return []Definition{
		{Name: "smi_payment", Group: GroupIntegration, Description: "A high-resolution order was paid."},
		{Name: "smi_job_status", Group: GroupIntegration, Description: "An order job changed status."},
		{Name: "spawn_credits", Group: GroupIntegration, Description: "Credits were purchased or auto-refilled."},
		{Name: "spawn_provisioning", Group: GroupIntegration, Description: "A site provisioning run finished."},
		{Name: "spawn_domain", Group: GroupIntegration, Description: "A domain was renewed."},
	}
}

// Defaults returns the browser and integration defaults together.
func Defaults() []Definition {
	return append(BrowserDefaults(), IntegrationDefaults()...)
}
