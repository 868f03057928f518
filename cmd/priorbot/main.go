package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/adbnode/prior-auto/internal/botcore"
	"github.com/adbnode/prior-auto/internal/config"
	"github.com/adbnode/prior-auto/internal/priorapi"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	cfg := config.Load()

	keys, err := config.LoadPrivateKeys(cfg.KeysFile)
	must(err, "load keys")
	proxies := config.LoadProxies(cfg.ProxyFile)

	accounts, err := botcore.NewAccounts(keys, proxies)
	must(err, "derive accounts")

	fmt.Println("=== CONFIG (.env) ===")
	fmt.Println("RPC_URL        :", cfg.RPCURL)
	fmt.Println("CHAIN_ID       :", cfg.ChainID)
	fmt.Println("API_BASE_URL   :", cfg.APIBaseURL)
	fmt.Println("ROUTER         :", cfg.Router)
	fmt.Println("FAUCET         :", cfg.Faucet)
	fmt.Println("WALLETS        :", len(accounts))
	fmt.Println("PROXIES        :", len(proxies))
	fmt.Println("SWAP_CYCLES    :", cfg.Cycles)
	fmt.Println("COOLDOWN_SOURCE:", cfg.CooldownSource)
	fmt.Println("=====================")

	sink := newTerminalSink()
	log := botcore.NewEventLog(cfg.LogCap, sink)

	gw := botcore.NewGateway(cfg.RPCURL, cfg.ChainID,
		common.HexToAddress(cfg.Router), common.HexToAddress(cfg.Faucet), cfg.ReceiptWait)

	api := priorapi.NewClient(cfg.APIBaseURL, log)
	api.ProxyFor = proxyLookup(accounts)

	prior := common.HexToAddress(cfg.PriorToken)
	usdc := common.HexToAddress(cfg.USDCToken)
	ctrl := botcore.NewController(gw, api, accounts, log, botcore.ControllerConfig{
		Directions: [2]botcore.Direction{
			{
				Label:      "PRIOR -> USDC",
				Selector:   botcore.SelectorPriorToUSDC,
				FromToken:  prior,
				ToToken:    usdc,
				FromSymbol: "PRIOR",
				ToSymbol:   "USDC",
				Decimals:   18,
			},
			{
				Label:      "USDC -> PRIOR",
				Selector:   botcore.SelectorUSDCToPrior,
				FromToken:  usdc,
				ToToken:    prior,
				FromSymbol: "USDC",
				ToSymbol:   "PRIOR",
				Decimals:   6,
			},
		},
		Defaults: botcore.SwapParams{
			Cycles:         cfg.Cycles,
			AmountPrior:    cfg.AmountPrior,
			AmountPriorMax: cfg.AmountPriorMax,
			AmountUSDC:     cfg.AmountUSDC,
			AmountUSDCMax:  cfg.AmountUSDCMax,
			DelayMin:       cfg.DelayMin,
			DelayMax:       cfg.DelayMax,
			CycleDelay:     cfg.CycleDelay,
		},
		FaucetDelay: cfg.FaucetDelay,
		Cooldown:    botcore.CooldownSource(cfg.CooldownSource),
	})

	menuLoop(ctrl, log, cfg)
}

func proxyLookup(accounts []*botcore.Account) func(common.Address) string {
	byAddr := make(map[common.Address]string, len(accounts))
	for _, a := range accounts {
		byAddr[a.Address] = a.Proxy
	}
	return func(addr common.Address) string { return byAddr[addr] }
}

func menuLoop(ctrl *botcore.Controller, log *botcore.EventLog, cfg config.Settings) {
	in := bufio.NewReader(os.Stdin)
	for {
		fmt.Println()
		fmt.Println("1) start swap campaign")
		fmt.Println("2) claim faucet (all wallets)")
		fmt.Println("3) refresh balances")
		fmt.Println("4) stop")
		fmt.Println("5) clear logs")
		fmt.Println("0) exit")
		fmt.Printf("[%s] > ", ctrl.State())

		line, err := in.ReadString('\n')
		if err != nil {
			ctrl.Stop()
			ctrl.Wait()
			return
		}
		switch strings.TrimSpace(line) {
		case "1":
			params := botcore.SwapParams{
				Cycles:         promptInt(in, fmt.Sprintf("cycles [%d]: ", cfg.Cycles), cfg.Cycles),
				AmountPrior:    promptStr(in, fmt.Sprintf("PRIOR amount [%s]: ", cfg.AmountPrior), cfg.AmountPrior),
				AmountPriorMax: promptStr(in, optLabel("PRIOR amount max", cfg.AmountPriorMax), cfg.AmountPriorMax),
				AmountUSDC:     promptStr(in, fmt.Sprintf("USDC amount [%s]: ", cfg.AmountUSDC), cfg.AmountUSDC),
				AmountUSDCMax:  promptStr(in, optLabel("USDC amount max", cfg.AmountUSDCMax), cfg.AmountUSDCMax),
				DelayMin:       promptSecs(in, "delay min", cfg.DelayMin),
				DelayMax:       promptSecs(in, "delay max", cfg.DelayMax),
				CycleDelay:     promptSecs(in, "cycle delay", cfg.CycleDelay),
			}
			if err := ctrl.StartSwapCampaign(params); err != nil {
				fmt.Println("cannot start:", err)
			}
		case "2":
			if err := ctrl.StartFaucetSweep(); err != nil {
				fmt.Println("cannot start:", err)
			}
		case "3":
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			if _, err := ctrl.RefreshBalances(ctx); err != nil {
				fmt.Println("refresh:", err)
			}
			cancel()
		case "4":
			ctrl.Stop()
		case "5":
			log.Clear()
			fmt.Println("logs cleared")
		case "0":
			ctrl.Stop()
			ctrl.Wait()
			return
		default:
			fmt.Println("unknown choice")
		}
	}
}

// promptStr reads a line, keeping def on empty input.
func promptStr(in *bufio.Reader, prompt, def string) string {
	fmt.Print(prompt)
	line, err := in.ReadString('\n')
	if err != nil {
		return def
	}
	if line = strings.TrimSpace(line); line != "" {
		return line
	}
	return def
}

// promptSecs reads a delay in whole seconds, keeping def on empty or bad
// input.
func promptSecs(in *bufio.Reader, what string, def time.Duration) time.Duration {
	n := promptInt(in, fmt.Sprintf("%s sec [%d]: ", what, int(def.Seconds())), int(def.Seconds()))
	return time.Duration(n) * time.Second
}

func optLabel(what, def string) string {
	if def == "" {
		return what + " (empty = fixed): "
	}
	return fmt.Sprintf("%s [%s]: ", what, def)
}

// promptInt reads a positive integer, keeping def on empty or bad input.
func promptInt(in *bufio.Reader, prompt string, def int) int {
	fmt.Print(prompt)
	line, err := in.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	n, err := strconv.Atoi(line)
	if err != nil || n <= 0 {
		fmt.Println("invalid number, using", def)
		return def
	}
	return n
}

func must(err error, what string) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", what+":", err)
		os.Exit(1)
	}
}
