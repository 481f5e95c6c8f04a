// Package probe drives a running motionscore instance end to end: it uploads
// exemplars, submits synthetic trainee recordings at several noise levels and
// checks that scores fall as noise rises.
package probe

import "time"

// Config holds configuration for a probe run.
type Config struct {
	BaseURL    string        // Base URL of the service
	APIKey     string        // Device key sent as X-API-Key
	MotionName string        // Motion type to exercise
	Channels   []string      // Channel schema used when the motion type is created
	Employees  []string      // Employee numbers that submit evaluations
	Frames     int           // Frames per generated recording
	Levels     []float64     // Noise standard deviations, one batch per level
	PerLevel   int           // Evaluations per noise level
	Workers    int           // Number of concurrent requests
	Timeout    time.Duration // HTTP request timeout
	Seed       uint64        // Random seed for reproducible runs
	Setup      bool          // Create the motion type and upload exemplars first
	OutputFile string        // YAML report path; empty skips the file
}

// LevelStats aggregates the evaluations of one noise level.
type LevelStats struct {
	Noise     float64 `yaml:"noise"`
	Submitted int     `yaml:"submitted"`
	Failed    int     `yaml:"failed"`
	MeanScore float64 `yaml:"mean_score"`
	MinScore  float64 `yaml:"min_score"`
	MaxScore  float64 `yaml:"max_score"`
}

// LeaderRow is one leaderboard row as reported by the service.
type LeaderRow struct {
	Rank     int     `json:"rank" yaml:"rank"`
	EmpNo    string  `json:"empNo" yaml:"emp_no"`
	Name     string  `json:"name" yaml:"name"`
	Score    float64 `json:"score" yaml:"score"`
	Attempts int     `json:"attempts" yaml:"attempts"`
}

// Report is the outcome of a probe run.
type Report struct {
	BaseURL     string        `yaml:"base_url"`
	MotionName  string        `yaml:"motion_name"`
	Ceiling     float64       `yaml:"ceiling"`
	Levels      []LevelStats  `yaml:"levels"`
	Monotonic   bool          `yaml:"monotonic"`
	Leaderboard []LeaderRow   `yaml:"leaderboard"`
	StartedAt   time.Time     `yaml:"started_at"`
	Duration    time.Duration `yaml:"duration"`
}
