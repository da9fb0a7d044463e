package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	// Details carries machine-readable context, e.g. the Permit2 address of
	// a partially completed deployment.
	Details any `json:"details,omitempty"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	NetworkID int64     `json:"network_id,omitempty"`
	Partial   bool      `json:"partial"`
}

type NetworkSummary struct {
	NetworkID          int64  `json:"network_id"`
	CAIP2              string `json:"caip2"`
	Name               string `json:"name"`
	Slug               string `json:"slug"`
	WrappedNativeToken string `json:"wrapped_native_token"`
	V2Factory          string `json:"v2_factory"`
	V3Factory          string `json:"v3_factory"`
	V2PairInitCodeHash string `json:"v2_pair_init_code_hash"`
	V3PoolInitCodeHash string `json:"v3_pool_init_code_hash"`
	RewardsDistributor string `json:"rewards_distributor,omitempty"`
	ExternalToken      string `json:"external_token,omitempty"`
	CanonicalPermit2   string `json:"canonical_permit2,omitempty"`
	ReferenceToken     string `json:"reference_token,omitempty"`
	DefaultRPC         string `json:"default_rpc,omitempty"`
	FeesConfigured     bool   `json:"fees_configured"`
}

type FeeRate struct {
	TradeType string `json:"trade_type"`
	Bps       int64  `json:"bps"`
	Percent   string `json:"percent"`
}

type FeeSummary struct {
	Recipient string    `json:"recipient"`
	BaseBps   int64     `json:"base_bps"`
	Rates     []FeeRate `json:"rates"`
}

// Permit2 sources reported by plan and deploy.
const (
	Permit2SourceFlag      = "flag"
	Permit2SourceResume    = "resume"
	Permit2SourceCanonical = "canonical"
	Permit2SourceDeploy    = "deploy"
)

type DeploymentPlan struct {
	NetworkID       int64      `json:"network_id"`
	Network         string     `json:"network"`
	Fees            FeeSummary `json:"fees"`
	Permit2Source   string     `json:"permit2_source"`
	Permit2         string     `json:"permit2,omitempty"`
	ResumedFromRun  string     `json:"resumed_from_run,omitempty"`
	Steps           []string   `json:"steps"`
	ConstructorArgs any        `json:"constructor_args,omitempty"`
	EncodedArgs     string     `json:"encoded_args,omitempty"`
}

type DeploymentOutcome struct {
	RunID         string   `json:"run_id"`
	NetworkID     int64    `json:"network_id"`
	Network       string   `json:"network"`
	State         string   `json:"state"`
	Deployer      string   `json:"deployer"`
	Permit2       string   `json:"permit2"`
	Permit2Reused bool     `json:"permit2_reused"`
	Router        string   `json:"router"`
	History       []string `json:"history"`
}
