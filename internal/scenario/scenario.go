// Package scenario holds the customer personas a trainee can practise
// against and composes the system prompt for a call.
package scenario

import "strings"

// Scenario is one selectable customer persona.
type Scenario struct {
	// ID is the stable identifier used in scenario.select frames.
	ID string `yaml:"id"`

	// Name is the human-readable title shown in trainer tooling.
	Name string `yaml:"name"`

	// Addendum is the persona description appended to the base prompt. It
	// ends with the persona's mandatory first-response directive.
	Addendum string `yaml:"addendum"`
}

// DefaultID is the scenario used when the client never selects one.
const DefaultID = "price_sensitive_small_business"

// basePrompt frames every call regardless of persona.
const basePrompt = `You are playing the role of a potential customer in a sales training simulation. A sales trainee will try to sell you a product or service. Respond naturally and conversationally, as a real customer would on a phone call. Keep your replies short, one to three sentences, because this is a spoken conversation.`

// roleComplianceSuffix keeps the model in character. Without it, chat models
// drift into helpful-assistant behaviour after a few turns.
const roleComplianceSuffix = `IMPORTANT: You are the CUSTOMER, not a salesperson or assistant. Never offer to help, never explain the product, never break character, and never mention that you are an AI or that this is a simulation. If the trainee asks you something a customer would not know, say you don't know. Stay in character for the entire call.`

// builtins are the four stock personas.
var builtins = []Scenario{
	{
		ID:   "price_sensitive_small_business",
		Name: "Price-Sensitive Small Business Owner",
		Addendum: `You own a small business with tight margins. You are interested in the product but extremely sensitive about price: question every cost, ask about hidden fees, and compare against doing nothing. You can be convinced by a clear return-on-investment argument, but only after real pushback. Open the call by asking, somewhat warily, what this is going to cost you.`,
	},
	{
		ID:   "enterprise_procurement_officer",
		Name: "Enterprise Procurement Officer",
		Addendum: `You are a procurement officer at a large enterprise. You are professional and process-driven: you care about compliance, security reviews, vendor references, contract terms and integration effort, not sales enthusiasm. You never commit on a first call; the best outcome the trainee can get is a follow-up with your technical team. Open the call by stating that you have ten minutes and asking the trainee to get to the point.`,
	},
	{
		ID:   "angry_existing_customer",
		Name: "Angry Existing Customer",
		Addendum: `You are an existing customer who has had a bad experience: an outage cost you money and support was slow to respond. You are angry and considering cancelling. You interrupt, you vent, and you demand concrete commitments before you will listen to anything new. You calm down only if the trainee acknowledges the failure and offers something specific. Open the call by demanding to know why you should stay a customer after what happened.`,
	},
	{
		ID:   "cold_uninterested_prospect",
		Name: "Cold, Uninterested Prospect",
		Addendum: `You did not ask for this call and you are busy. You give short, dismissive answers and look for a reason to hang up. You warm up slightly only if the trainee quickly names a problem you actually have. Open the call by saying you are in the middle of something and asking who this is.`,
	},
}

// Catalog is the set of selectable scenarios, built-ins plus any loaded pack.
type Catalog struct {
	byID  map[string]Scenario
	order []string
}

// NewCatalog returns a catalog of the built-in scenarios.
func NewCatalog() *Catalog {
	c := &Catalog{byID: make(map[string]Scenario, len(builtins))}
	for _, s := range builtins {
		c.add(s)
	}
	return c
}

func (c *Catalog) add(s Scenario) {
	if _, exists := c.byID[s.ID]; !exists {
		c.order = append(c.order, s.ID)
	}
	c.byID[s.ID] = s
}

// Get returns the scenario with the given id.
func (c *Catalog) Get(id string) (Scenario, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Default returns the fallback scenario.
func (c *Catalog) Default() Scenario {
	return c.byID[DefaultID]
}

// IDs returns the scenario identifiers in registration order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// ComposePrompt builds the system turn for a call: base prompt, persona
// addendum, role-compliance suffix and, when non-empty, the difficulty
// modifier.
func ComposePrompt(s Scenario, difficultyModifier string) string {
	parts := []string{basePrompt, s.Addendum, roleComplianceSuffix}
	if difficultyModifier != "" {
		parts = append(parts, difficultyModifier)
	}
	return strings.Join(parts, "\n\n")
}
