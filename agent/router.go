package agent

// Model tiers understood by the Claude Code CLI.
const (
	ModelSonnet = "sonnet"
	ModelOpus   = "opus"
)

// commandModels routes each recognized slash command to a model tier.
// Planning-heavy commands get the capable tier, everything else the
// fast one.
var commandModels = map[string]string{
	"/classify_issue":          ModelSonnet,
	"/classify_adw":            ModelSonnet,
	"/generate_branch_name":    ModelSonnet,
	"/implement":               ModelOpus,
	"/test":                    ModelSonnet,
	"/resolve_failed_test":     ModelSonnet,
	"/test_e2e":                ModelSonnet,
	"/resolve_failed_e2e_test": ModelSonnet,
	"/review":                  ModelOpus,
	"/document":                ModelSonnet,
	"/commit":                  ModelSonnet,
	"/pull_request":            ModelSonnet,
	"/chore":                   ModelSonnet,
	"/bug":                     ModelOpus,
	"/feature":                 ModelOpus,
	"/patch":                   ModelOpus,
}

// ModelFor returns the model tier for a slash command. Unrecognized
// commands fall back to the caller-supplied default.
func ModelFor(command, defaultModel string) string {
	if model, ok := commandModels[command]; ok {
		return model
	}
	return defaultModel
}
