package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	ShipmentAssignedTopic string `yaml:"shipment_assigned_topic"`
	ShipperRejectionTopic string `yaml:"shipper_rejection_topic"`
	AdminAlertTopic       string `yaml:"admin_alert_topic"`
	CourierNearbyTopic    string `yaml:"courier_nearby_topic"`
	CourierLocationTopic  string `yaml:"courier_location_topic"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DispatchConfig struct {
	HTTPAddr       string `yaml:"http_addr"`
	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// Candidate search.
	SearchRadiusKm        float64 `yaml:"search_radius_km"`
	SearchRadiusCeilingKm float64 `yaml:"search_radius_ceiling_km"`
	CandidateLimit        int     `yaml:"candidate_limit"`
	MaxOrderDifference    int32   `yaml:"max_order_difference"`

	// Retry queue.
	RetryIntervalSeconds int   `yaml:"retry_interval_seconds"`
	MaxAssignmentRetries int32 `yaml:"max_assignment_retries"`

	// Live position records.
	PositionTTLSeconds int `yaml:"position_ttl_seconds"`

	// Proximity alerts.
	ProximityThresholdMeters float64 `yaml:"proximity_threshold_meters"`
	ProximityFlagTTLSeconds  int     `yaml:"proximity_flag_ttl_seconds"`

	// Transit simulation.
	TransitHopDelaySeconds     int `yaml:"transit_hop_delay_seconds"`
	TransitPollIntervalSeconds int `yaml:"transit_poll_interval_seconds"`
	TransitBatchSize           int `yaml:"transit_batch_size"`
	TransitConcurrency         int `yaml:"transit_concurrency"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
