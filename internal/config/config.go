package config

import (
	"fmt"
	"time"
)

const (
	TranscriberBackendAmazon = "amazon"
	TranscriberBackendGoogle = "google"

	GeneratorBackendInvoke    = "invoke"
	GeneratorBackendAnthropic = "anthropic"
)

type Config struct {
	Env                        string
	AWSRegion                  string
	TranscriberBackend         string
	TranscribeLanguageCode     string
	TranscribeMediaEncoding    string
	TranscribeSampleRateHz     int
	MaxTranscribeDurationMin   int
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	GeneratorBackend           string
	BedrockModelID             string
	SummaryMaxTokens           int
	SummaryTemperature         float64
	SentimentLanguageCode      string
	SentimentAlertThreshold    float64
	DatabaseURL                string
	RedisAddr                  string
	RedisPassword              string
	RedisDB                    int
	OCRCacheTTLMin             int
	HTTPAddr                   string
	APIJWTSecret               string
	DiscordToken               string
	DiscordGuildID             string
	TranscriptTimezone         string
	TranscriptWebhookURL       string
	WebhookSecret              string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	return c.validateSettings()
}

// ValidateStandalone checks what a transcription run needs without the database or the HTTP server.
func (c *Config) ValidateStandalone() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" && !req.serverOnly {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	return c.validateSettings()
}

func (c *Config) validateSettings() error {
	switch c.TranscriberBackend {
	case TranscriberBackendAmazon:
	case TranscriberBackendGoogle:
		if c.GoogleCloudProjectID == "" || c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_CREDENTIALS_JSON are required when TRANSCRIBER_BACKEND=google")
		}
	default:
		return fmt.Errorf("TRANSCRIBER_BACKEND must be %q or %q, got %q", TranscriberBackendAmazon, TranscriberBackendGoogle, c.TranscriberBackend)
	}
	switch c.GeneratorBackend {
	case GeneratorBackendInvoke, GeneratorBackendAnthropic:
	default:
		return fmt.Errorf("GENERATOR_BACKEND must be %q or %q, got %q", GeneratorBackendInvoke, GeneratorBackendAnthropic, c.GeneratorBackend)
	}
	if c.TranscribeSampleRateHz < 8000 || c.TranscribeSampleRateHz > 48000 {
		return fmt.Errorf("TRANSCRIBE_SAMPLE_RATE_HZ must be between 8000 and 48000, got %d", c.TranscribeSampleRateHz)
	}
	if c.MaxTranscribeDurationMin <= 0 {
		return fmt.Errorf("MAX_TRANSCRIBE_DURATION_MIN must be positive, got %d", c.MaxTranscribeDurationMin)
	}
	if c.SummaryMaxTokens <= 0 {
		return fmt.Errorf("SUMMARY_MAX_TOKENS must be positive, got %d", c.SummaryMaxTokens)
	}
	if c.SummaryTemperature < 0 || c.SummaryTemperature > 1 {
		return fmt.Errorf("SUMMARY_TEMPERATURE must be between 0 and 1, got %v", c.SummaryTemperature)
	}
	if c.SentimentAlertThreshold < 0 || c.SentimentAlertThreshold > 1 {
		return fmt.Errorf("SENTIMENT_ALERT_THRESHOLD must be between 0 and 1, got %v", c.SentimentAlertThreshold)
	}
	if c.OCRCacheTTLMin < 0 {
		return fmt.Errorf("OCR_CACHE_TTL_MIN must not be negative, got %d", c.OCRCacheTTLMin)
	}
	if c.DiscordToken != "" && c.DiscordGuildID == "" {
		return fmt.Errorf("DISCORD_GUILD_ID is required when DISCORD_TOKEN is set")
	}
	if _, err := time.LoadLocation(c.TranscriptTimezone); err != nil {
		return fmt.Errorf("TRANSCRIPT_TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name       string
	value      string
	serverOnly bool
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "AWS_REGION", value: c.AWSRegion},
		{name: "TRANSCRIBE_LANGUAGE_CODE", value: c.TranscribeLanguageCode},
		{name: "TRANSCRIBE_MEDIA_ENCODING", value: c.TranscribeMediaEncoding},
		{name: "BEDROCK_MODEL_ID", value: c.BedrockModelID},
		{name: "SENTIMENT_LANGUAGE_CODE", value: c.SentimentLanguageCode},
		{name: "DATABASE_URL", value: c.DatabaseURL, serverOnly: true},
		{name: "HTTP_ADDR", value: c.HTTPAddr, serverOnly: true},
		{name: "TRANSCRIPT_TIMEZONE", value: c.TranscriptTimezone},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) DiscordEnabled() bool {
	return c.DiscordToken != ""
}

func (c *Config) MaxTranscribeDuration() time.Duration {
	return time.Duration(c.MaxTranscribeDurationMin) * time.Minute
}

func (c *Config) OCRCacheTTL() time.Duration {
	return time.Duration(c.OCRCacheTTLMin) * time.Minute
}
