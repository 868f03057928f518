package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings keeps all configuration options for the bot.
// Every field has an env default tuned for the PRIOR testnet deployment.
type Settings struct {
	RPCURL  string
	ChainID int64

	APIBaseURL string

	PriorToken string
	USDCToken  string
	Router     string
	Faucet     string

	KeysFile  string
	ProxyFile string

	Cycles         int
	AmountPrior    string // tokens, 18 decimals
	AmountPriorMax string // empty = fixed amount
	AmountUSDC     string // tokens, 6 decimals
	AmountUSDCMax  string
	DelayMin       time.Duration
	DelayMax       time.Duration
	CycleDelay     time.Duration
	FaucetDelay    time.Duration
	ReceiptWait    time.Duration
	CooldownSource string // "api" or "contract"

	LogCap int
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys.
func Load() Settings {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
		}
		return def
	}
	getInt := func(keys []string, def int) int {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
		return def
	}
	getInt64 := func(keys []string, def int64) int64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
		return def
	}
	getSecs := func(keys []string, def int) time.Duration {
		return time.Duration(getInt(keys, def)) * time.Second
	}

	st := Settings{}
	st.RPCURL = get([]string{"rpc_url", "RPC_URL"}, "https://sepolia.base.org")
	st.ChainID = getInt64([]string{"chain_id", "CHAIN_ID"}, 84532)
	st.APIBaseURL = get([]string{"api_base_url", "API_BASE_URL"}, "https://priortestnet.xyz/api")

	st.PriorToken = get([]string{"prior_token", "PRIOR_TOKEN"}, "0xeFC91C5a51E8533282486FA2601dFfe0a0b16EDb")
	st.USDCToken = get([]string{"usdc_token", "USDC_TOKEN"}, "0xdB07b0b4E88D9D5A79A08E91fEE20Bb41f9989a2")
	st.Router = get([]string{"router", "ROUTER"}, "0x8957e1988905311EE249e679a29fc9deCEd4D910")
	st.Faucet = get([]string{"faucet", "FAUCET"}, "0xa206dC56F1A56a03aEa0fCBB7c7A62b5bE1Fe419")

	st.KeysFile = get([]string{"keys_file", "KEYS_FILE"}, "pk.txt")
	st.ProxyFile = get([]string{"proxy_file", "PROXY_FILE"}, "proxy.txt")

	st.Cycles = getInt([]string{"swap_cycles", "SWAP_CYCLES"}, 6)
	st.AmountPrior = get([]string{"amount_prior", "AMOUNT_PRIOR"}, "0.1")
	st.AmountPriorMax = get([]string{"amount_prior_max", "AMOUNT_PRIOR_MAX"}, "")
	st.AmountUSDC = get([]string{"amount_usdc", "AMOUNT_USDC"}, "0.2")
	st.AmountUSDCMax = get([]string{"amount_usdc_max", "AMOUNT_USDC_MAX"}, "")
	st.DelayMin = getSecs([]string{"delay_min_sec", "DELAY_MIN_SEC"}, 15)
	st.DelayMax = getSecs([]string{"delay_max_sec", "DELAY_MAX_SEC"}, 30)
	st.CycleDelay = getSecs([]string{"cycle_delay_sec", "CYCLE_DELAY_SEC"}, 30)
	st.FaucetDelay = getSecs([]string{"faucet_delay_sec", "FAUCET_DELAY_SEC"}, 10)
	st.ReceiptWait = getSecs([]string{"receipt_wait_sec", "RECEIPT_WAIT_SEC"}, 90)
	st.CooldownSource = strings.ToLower(get([]string{"cooldown_source", "COOLDOWN_SOURCE"}, "api"))

	st.LogCap = getInt([]string{"log_cap", "LOG_CAP"}, 500)
	return st
}
