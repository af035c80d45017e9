package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	GigaChat GigaChatConfig
	Wallet   WalletConfig
	UPI      UPIConfig
	Pipeline PipelineConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Driver string // "sqlite" or "postgres"

	// sqlite
	Path string

	// postgres
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	InsecureSkipVerify bool
}

type WalletConfig struct {
	IssuerID           string
	ServiceAccountFile string
}

type UPIConfig struct {
	PayeeVPA  string
	PayeeName string
}

type PipelineConfig struct {
	UploadDir           string
	CollaboratorTimeout time.Duration
}

func Load() (*Config, error) {
	// .env is optional; environment variables win either way.
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	collabTimeout, _ := strconv.Atoi(getEnv("PIPELINE_COLLABORATOR_TIMEOUT", "120"))
	insecureSkipVerify := getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true"

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8001"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Path:     getEnv("DB_PATH", "data/billfold.db"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "billfold"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: insecureSkipVerify,
		},
		Wallet: WalletConfig{
			IssuerID:           getEnv("WALLET_ISSUER_ID", ""),
			ServiceAccountFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		UPI: UPIConfig{
			PayeeVPA:  getEnv("UPI_PAYEE_VPA", "9205704825@ptsbi"),
			PayeeName: getEnv("UPI_PAYEE_NAME", "Maisha"),
		},
		Pipeline: PipelineConfig{
			UploadDir:           getEnv("UPLOAD_DIR", "uploads"),
			CollaboratorTimeout: time.Duration(collabTimeout) * time.Second,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
