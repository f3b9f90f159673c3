package tokenpulse

const (
	// BagsAPIKeyEnv defines the environment variable name containing the Bags.fm API key.
	// When the variable is unset the lifetime-fee sources are skipped, not treated as fatal.
	BagsAPIKeyEnv = "BAGS_API_KEY"
)
