package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ROBOT_ID", "GATEWAY_WS_URL", "GATEWAY_HTTP_URL", "GATEWAY_JWKS_URL",
		"JOINT_NAMES", "TICK_PERIOD_MS", "JOG_JOINT_LIMIT_DEG", "JOG_JOINT_TOL_DEG",
		"TRAJECTORY_ERROR_TOL_DEG", "JOG_JOINT_TIMEOUT_MS", "COMMUNICATION_TIMEOUT_MS",
		"RATE_LIMIT_POSITION_HZ", "RATE_LIMIT_VELOCITY_HZ",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingRobotID(t *testing.T) {
	clearEnv(t)
	t.Setenv("GATEWAY_WS_URL", "ws://gateway:8080/v1/stream")
	t.Setenv("GATEWAY_JWKS_URL", "http://gateway:8080/.well-known/jwks.json")
	t.Setenv("JOINT_NAMES", "shoulder,elbow,wrist")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing ROBOT_ID")
	}
}

func TestLoad_MissingJointNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROBOT_ID", "robot-1")
	t.Setenv("GATEWAY_WS_URL", "ws://gateway:8080/v1/stream")
	t.Setenv("GATEWAY_JWKS_URL", "http://gateway:8080/.well-known/jwks.json")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing JOINT_NAMES")
	}
}

func TestLoad_DefaultsAndJointCount(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROBOT_ID", "robot-1")
	t.Setenv("GATEWAY_WS_URL", "ws://gateway:8080/v1/stream")
	t.Setenv("GATEWAY_JWKS_URL", "http://gateway:8080/.well-known/jwks.json")
	t.Setenv("JOINT_NAMES", "j1,j2,j3,j4,j5,j6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.JointCount() != 6 {
		t.Errorf("expected 6 joints, got %d", cfg.JointCount())
	}
	if cfg.TickPeriod != 10*time.Millisecond {
		t.Errorf("expected 10ms tick period, got %v", cfg.TickPeriod)
	}
	if cfg.JogJointLimitDeg != 15.0 {
		t.Errorf("expected 15 deg jog limit, got %v", cfg.JogJointLimitDeg)
	}
	if cfg.CommunicationTimeout != 250*time.Millisecond {
		t.Errorf("expected 250ms communication timeout, got %v", cfg.CommunicationTimeout)
	}
	if cfg.GatewayHTTPURL != "http://gateway:8080" {
		t.Errorf("expected derived http url, got %s", cfg.GatewayHTTPURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROBOT_ID", "robot-1")
	t.Setenv("GATEWAY_WS_URL", "wss://gateway:8443/v1/stream")
	t.Setenv("GATEWAY_JWKS_URL", "https://gateway:8443/.well-known/jwks.json")
	t.Setenv("JOINT_NAMES", "j1,j2")
	t.Setenv("JOG_JOINT_LIMIT_DEG", "20")
	t.Setenv("TICK_PERIOD_MS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.JogJointLimitDeg != 20.0 {
		t.Errorf("expected overridden jog limit 20, got %v", cfg.JogJointLimitDeg)
	}
	if cfg.TickPeriod != 5*time.Millisecond {
		t.Errorf("expected overridden tick period 5ms, got %v", cfg.TickPeriod)
	}
}
