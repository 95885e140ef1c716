package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/camden-git/faceattend/database"
	"github.com/camden-git/faceattend/recognition"
	"gorm.io/gorm/logger"
)

const (
	BackendDlib = "dlib"
	BackendDNN  = "dnn"
)

const (
	defaultDatabasePath   = "attendance.db"
	defaultDatasetPath    = "dataset"
	defaultReportPath     = "attendance_report.csv"
	defaultListenAddr     = "127.0.0.1:8080"
	defaultEnrollWorkers  = 2
	defaultEnrollQueue    = 64
	defaultCooldownSecs   = 60
	defaultDetectionConf  = 0.2
	defaultDlibTolerance  = 0.5
	defaultDNNTolerance   = 1.0
	defaultRecognitionNet = "arcface"
)

type Config struct {
	// storage
	DatabaseDriver database.Driver
	DatabasePath   string // sqlite file
	DatabaseURL    string // mysql / postgres DSN
	GormLogLevel   logger.LogLevel

	// files
	DatasetPath string // enrollment snapshots
	ReportPath  string // csv export target

	// capture
	CameraDevice int

	// signature extraction
	ExtractorBackend         string
	DlibModelsPath           string
	FaceDNNNetConfigPath     string
	FaceDNNNetModelPath      string
	FaceRecognitionModelPath string
	FaceRecognitionModelName string
	FaceDetectionConfidence  float64
	ExtractTimeout           time.Duration

	// matching and attendance
	MatchTolerance     float64
	MatchPolicy        recognition.MatchPolicy
	AttendanceDedup    recognition.DedupPolicy
	AttendanceCooldown time.Duration
	PipelineMode       recognition.PipelineMode

	// http
	ListenAddr         string
	CORSAllowedOrigins []string

	// background work
	ExportCron      string
	EnrollWorkers   int
	EnrollQueueSize int
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val < 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvList(envVar string, defaultVal []string) []string {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DefaultTolerance is the match tolerance used when MATCH_TOLERANCE is unset.
func DefaultTolerance(backend string) float64 {
	if backend == BackendDNN {
		return defaultDNNTolerance
	}
	return defaultDlibTolerance
}

func LoadConfig() (Config, error) {
	driver, err := database.ParseDriver(getEnvOrDefault("DATABASE_DRIVER", string(database.DriverSQLite)))
	if err != nil {
		return Config{}, err
	}

	dataset := getEnvOrDefault("DATASET_PATH", defaultDatasetPath)
	absDataset, err := filepath.Abs(dataset)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for dataset directory '%s': %w", dataset, err)
	}

	backend := strings.ToLower(getEnvOrDefault("EXTRACTOR_BACKEND", BackendDlib))

	matchPolicy, err := recognition.ParseMatchPolicy(os.Getenv("MATCH_POLICY"))
	if err != nil {
		return Config{}, err
	}
	dedup, err := recognition.ParseDedupPolicy(os.Getenv("ATTENDANCE_DEDUP"))
	if err != nil {
		return Config{}, err
	}
	mode, err := recognition.ParsePipelineMode(os.Getenv("PIPELINE_MODE"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DatabaseDriver: driver,
		DatabasePath:   getEnvOrDefault("DATABASE_PATH", defaultDatabasePath),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		GormLogLevel:   database.ParseLogLevel(os.Getenv("GORM_LOG_LEVEL")),

		DatasetPath: absDataset,
		ReportPath:  getEnvOrDefault("REPORT_PATH", defaultReportPath),

		CameraDevice: getEnvIntOrDefault("CAMERA_DEVICE", 0),

		ExtractorBackend:         backend,
		DlibModelsPath:           getEnvOrDefault("DLIB_MODELS_PATH", "./models"),
		FaceDNNNetConfigPath:     getEnvOrDefault("FACE_DNN_CONFIG_PATH", "./models/deploy.prototxt.txt"),
		FaceDNNNetModelPath:      getEnvOrDefault("FACE_DNN_MODEL_PATH", "./models/res10_300x300_ssd_iter_140000_fp16.caffemodel"),
		FaceRecognitionModelPath: getEnvOrDefault("FACE_RECOGNITION_MODEL_PATH", "./models/arcface.onnx"),
		FaceRecognitionModelName: getEnvOrDefault("FACE_RECOGNITION_MODEL_NAME", defaultRecognitionNet),
		FaceDetectionConfidence:  getEnvFloatOrDefault("FACE_DETECTION_CONFIDENCE", defaultDetectionConf),
		ExtractTimeout:           time.Duration(getEnvIntOrDefault("EXTRACT_TIMEOUT_MS", 0)) * time.Millisecond,

		MatchTolerance:     getEnvFloatOrDefault("MATCH_TOLERANCE", DefaultTolerance(backend)),
		MatchPolicy:        matchPolicy,
		AttendanceDedup:    dedup,
		AttendanceCooldown: time.Duration(getEnvIntOrDefault("ATTENDANCE_COOLDOWN_SECONDS", defaultCooldownSecs)) * time.Second,
		PipelineMode:       mode,

		ListenAddr:         getEnvOrDefault("LISTEN_ADDR", defaultListenAddr),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://127.0.0.1:5173"}),

		ExportCron:      os.Getenv("EXPORT_CRON"),
		EnrollWorkers:   getEnvIntOrDefault("ENROLL_WORKERS", defaultEnrollWorkers),
		EnrollQueueSize: getEnvIntOrDefault("ENROLL_QUEUE_SIZE", defaultEnrollQueue),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the cross-field rules that defaults cannot repair.
func (c Config) Validate() error {
	switch c.ExtractorBackend {
	case BackendDlib, BackendDNN:
	default:
		return fmt.Errorf("unknown EXTRACTOR_BACKEND %q (want dlib or dnn)", c.ExtractorBackend)
	}
	if c.DatabaseDriver != database.DriverSQLite && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for driver %s", c.DatabaseDriver)
	}
	if c.EnrollWorkers < 1 {
		return fmt.Errorf("ENROLL_WORKERS must be at least 1, got %d", c.EnrollWorkers)
	}
	if c.AttendanceDedup == recognition.DedupCooldown && c.AttendanceCooldown <= 0 {
		return fmt.Errorf("ATTENDANCE_COOLDOWN_SECONDS must be positive for cooldown dedup")
	}
	return nil
}

// DatabaseDSN is the connection string for the configured driver.
func (c Config) DatabaseDSN() string {
	if c.DatabaseDriver == database.DriverSQLite {
		if c.DatabaseURL != "" {
			return c.DatabaseURL
		}
		return database.SQLiteDSN(c.DatabasePath)
	}
	return c.DatabaseURL
}
