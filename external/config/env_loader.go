package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/kikitori/internal/config"
)

type envConfig struct {
	Env                        string  `env:"ENV" envDefault:"production"`
	AWSRegion                  string  `env:"AWS_REGION" envDefault:"us-east-1"`
	TranscriberBackend         string  `env:"TRANSCRIBER_BACKEND" envDefault:"amazon"`
	TranscribeLanguageCode     string  `env:"TRANSCRIBE_LANGUAGE_CODE" envDefault:"en-US"`
	TranscribeMediaEncoding    string  `env:"TRANSCRIBE_MEDIA_ENCODING" envDefault:"pcm"`
	TranscribeSampleRateHz     int     `env:"TRANSCRIBE_SAMPLE_RATE_HZ" envDefault:"16000"`
	MaxTranscribeDurationMin   int     `env:"MAX_TRANSCRIBE_DURATION_MIN" envDefault:"120"`
	GoogleCloudProjectID       string  `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string  `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string  `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"asia-northeast1"`
	GoogleCloudSpeechModel     string  `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`
	GeneratorBackend           string  `env:"GENERATOR_BACKEND" envDefault:"invoke"`
	BedrockModelID             string  `env:"BEDROCK_MODEL_ID" envDefault:"anthropic.claude-3-haiku-20240307-v1:0"`
	SummaryMaxTokens           int     `env:"SUMMARY_MAX_TOKENS" envDefault:"512"`
	SummaryTemperature         float64 `env:"SUMMARY_TEMPERATURE" envDefault:"0.2"`
	SentimentLanguageCode      string  `env:"SENTIMENT_LANGUAGE_CODE" envDefault:"en"`
	SentimentAlertThreshold    float64 `env:"SENTIMENT_ALERT_THRESHOLD" envDefault:"0.9"`
	DatabaseURL                string  `env:"DATABASE_URL"`
	RedisAddr                  string  `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword              string  `env:"REDIS_PASSWORD"`
	RedisDB                    int     `env:"REDIS_DB" envDefault:"0"`
	OCRCacheTTLMin             int     `env:"OCR_CACHE_TTL_MIN" envDefault:"60"`
	HTTPAddr                   string  `env:"HTTP_ADDR" envDefault:":8080"`
	APIJWTSecret               string  `env:"API_JWT_SECRET"`
	DiscordToken               string  `env:"DISCORD_TOKEN"`
	DiscordGuildID             string  `env:"DISCORD_GUILD_ID"`
	TranscriptTimezone         string  `env:"TRANSCRIPT_TIMEZONE" envDefault:"UTC"`
	TranscriptWebhookURL       string  `env:"TRANSCRIPT_WEBHOOK_URL"`
	WebhookSecret              string  `env:"WEBHOOK_SECRET"`
}

func Load() (*internalconfig.Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStandalone loads the configuration for commands that run without the database.
func LoadStandalone() (*internalconfig.Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStandalone(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	return &internalconfig.Config{
		Env:                        raw.Env,
		AWSRegion:                  raw.AWSRegion,
		TranscriberBackend:         raw.TranscriberBackend,
		TranscribeLanguageCode:     raw.TranscribeLanguageCode,
		TranscribeMediaEncoding:    raw.TranscribeMediaEncoding,
		TranscribeSampleRateHz:     raw.TranscribeSampleRateHz,
		MaxTranscribeDurationMin:   raw.MaxTranscribeDurationMin,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		GeneratorBackend:           raw.GeneratorBackend,
		BedrockModelID:             raw.BedrockModelID,
		SummaryMaxTokens:           raw.SummaryMaxTokens,
		SummaryTemperature:         raw.SummaryTemperature,
		SentimentLanguageCode:      raw.SentimentLanguageCode,
		SentimentAlertThreshold:    raw.SentimentAlertThreshold,
		DatabaseURL:                raw.DatabaseURL,
		RedisAddr:                  raw.RedisAddr,
		RedisPassword:              raw.RedisPassword,
		RedisDB:                    raw.RedisDB,
		OCRCacheTTLMin:             raw.OCRCacheTTLMin,
		HTTPAddr:                   raw.HTTPAddr,
		APIJWTSecret:               raw.APIJWTSecret,
		DiscordToken:               raw.DiscordToken,
		DiscordGuildID:             raw.DiscordGuildID,
		TranscriptTimezone:         raw.TranscriptTimezone,
		TranscriptWebhookURL:       raw.TranscriptWebhookURL,
		WebhookSecret:              raw.WebhookSecret,
	}, nil
}
