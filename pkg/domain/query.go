package domain

// QueryPayload is the structured request for one model call: the layered
// prompts, the kind-filtered history (whose last element is the inbound
// message), and the hyperparameters passed through to the endpoint.
type QueryPayload struct {
	SystemPrompt    string
	CharacterPrompt string
	History         []Message
	ModelParams     map[string]any
}
