package config

// NewLLMForTest creates an LLM config for testing purposes
func NewLLMForTest(provider, model, openaiKey, claudeKey, geminiProject string) *LLM {
	return &LLM{
		provider:       provider,
		model:          model,
		openaiAPIKey:   openaiKey,
		claudeAPIKey:   claudeKey,
		geminiProject:  geminiProject,
		geminiLocation: "us-central1",
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output, file string) *Logger {
	return &Logger{level: level, format: format, output: output, file: file}
}

// NewAgentForTest creates an Agent config for testing purposes
func NewAgentForTest(root, configPath string) *Agent {
	return &Agent{root: root, configPath: configPath}
}

// NewSearchForTest creates a Search config for testing purposes
func NewSearchForTest(apiKey, endpoint string) *Search {
	return &Search{apiKey: apiKey, endpoint: endpoint}
}

// NewSlackForTest creates a Slack config for testing purposes
func NewSlackForTest(botToken, channel, channelPrefix, apiURL string) *Slack {
	return &Slack{botToken: botToken, channel: channel, channelPrefix: channelPrefix, apiURL: apiURL}
}

// NewSentryForTest creates a Sentry config for testing purposes
func NewSentryForTest(dsn string) *Sentry {
	return &Sentry{dsn: dsn}
}

// NewStorageForTest creates a Storage config for testing purposes
func NewStorageForTest(bucket, prefix, endpoint string) *Storage {
	return &Storage{bucket: bucket, prefix: prefix, endpoint: endpoint}
}
