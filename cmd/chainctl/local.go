package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/chain/service"
	"github.com/jmerrifield20/powchain/internal/digest"
	"github.com/jmerrifield20/powchain/internal/ledger"
	"github.com/jmerrifield20/powchain/internal/merkle"
	"github.com/jmerrifield20/powchain/internal/pow"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ── hash ─────────────────────────────────────────────────────────────────────

var hashFile string

var hashCmd = &cobra.Command{
	Use:   "hash [text]",
	Short: "Print the SHA-256 digest of text, a file, or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h := digest.New()
		switch {
		case hashFile != "":
			f, err := os.Open(hashFile)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(h, f); err != nil {
				return fmt.Errorf("read %s: %w", hashFile, err)
			}
		case len(args) == 1:
			io.WriteString(h, args[0]) //nolint:errcheck
		default:
			if _, err := io.Copy(h, cmd.InOrStdin()); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%x\n", h.Sum(nil))
		return nil
	},
}

func init() {
	hashCmd.Flags().StringVar(&hashFile, "file", "", "hash the contents of this file")
}

// ── merkle ───────────────────────────────────────────────────────────────────

var merkleTxs []string

var merkleCmd = &cobra.Command{
	Use:   "merkle --tx sender,recipient,amount [--tx ...]",
	Short: "Compute the Merkle root of an ordered transaction list",
	RunE: func(cmd *cobra.Command, args []string) error {
		leaves := make([]digest.Digest, 0, len(merkleTxs))
		data := pterm.TableData{{"#", "TRANSACTION", "LEAF"}}
		for i, s := range merkleTxs {
			tx, err := parseTransaction(s)
			if err != nil {
				return err
			}
			leaf := merkle.Leaf(tx)
			leaves = append(leaves, leaf)
			data = append(data, []string{strconv.Itoa(i), tx.String(), leaf.String()})
		}
		if len(leaves) > 0 {
			if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
				return err
			}
		}
		pterm.Info.Printfln("merkle root: %s", merkle.RootOf(leaves))
		return nil
	},
}

func init() {
	merkleCmd.Flags().StringArrayVar(&merkleTxs, "tx", nil, "transaction as sender,recipient,amount (repeatable, order matters)")
}

// parseTransaction parses "sender,recipient,amount".
func parseTransaction(s string) (model.Transaction, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return model.Transaction{}, fmt.Errorf("transaction %q: want sender,recipient,amount", s)
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %q: amount: %w", s, err)
	}
	tx := model.Transaction{
		Sender:    strings.TrimSpace(parts[0]),
		Recipient: strings.TrimSpace(parts[1]),
		Amount:    amount,
	}
	return tx, tx.Validate()
}

// ── pow ──────────────────────────────────────────────────────────────────────

var (
	powPrev        string
	powRoot        string
	powTimestamp   int64
	powDifficulty  int
	powWorkers     int
	powMaxAttempts uint64
	powTimeout     time.Duration
)

var powCmd = &cobra.Command{
	Use:   "pow",
	Short: "Search for a nonce satisfying a difficulty",
	Long: `Search for the smallest nonce whose header digest starts with
--difficulty zero hex digits.

  chainctl pow --difficulty 4 --timestamp 1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := pow.Inputs{Timestamp: powTimestamp}
		var err error
		if powPrev != "" {
			if in.PreviousDigest, err = digest.Parse(powPrev); err != nil {
				return fmt.Errorf("--prev: %w", err)
			}
		}
		if powRoot != "" {
			if in.MerkleRoot, err = digest.Parse(powRoot); err != nil {
				return fmt.Errorf("--root: %w", err)
			}
		}

		ctx := context.Background()
		if powTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, powTimeout)
			defer cancel()
		}

		miner := pow.NewMiner(pow.WithWorkers(powWorkers), pow.WithMaxAttempts(powMaxAttempts))
		spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("mining at difficulty %d...", powDifficulty))
		res, err := miner.Mine(ctx, in, powDifficulty)
		if err != nil {
			if spinner != nil {
				spinner.Fail(err.Error())
			}
			return err
		}
		if spinner != nil {
			spinner.Success(fmt.Sprintf("found nonce %d", res.Header.Nonce))
		}

		rate := float64(res.Attempts) / res.Elapsed.Seconds()
		return pterm.DefaultTable.WithData(pterm.TableData{
			{"digest", res.Header.Digest.String()},
			{"nonce", strconv.FormatUint(res.Header.Nonce, 10)},
			{"attempts", strconv.FormatUint(res.Attempts, 10)},
			{"elapsed", res.Elapsed.String()},
			{"hash rate", fmt.Sprintf("%.0f H/s", rate)},
		}).Render()
	},
}

func init() {
	powCmd.Flags().StringVar(&powPrev, "prev", "", "previous digest (64 hex chars, default zero)")
	powCmd.Flags().StringVar(&powRoot, "root", "", "merkle root (64 hex chars, default zero)")
	powCmd.Flags().Int64Var(&powTimestamp, "timestamp", 1, "header timestamp")
	powCmd.Flags().IntVar(&powDifficulty, "difficulty", 4, "leading zero hex digits required")
	powCmd.Flags().IntVar(&powWorkers, "workers", 1, "parallel search goroutines")
	powCmd.Flags().Uint64Var(&powMaxAttempts, "max-attempts", 0, "give up after this many digests (0 = unbounded)")
	powCmd.Flags().DurationVar(&powTimeout, "timeout", 0, "give up after this long (0 = no limit)")
}

// ── demo ─────────────────────────────────────────────────────────────────────

var (
	demoDifficulty int
	demoWorkers    int
	demoTamper     bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Build, display and validate a small chain in memory",
	Long: `Mine a genesis block and two blocks of sample transfers with miner
rewards, print the chain and validate it. With --tamper, an amount in
block #1 is then altered and validation is run again.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().IntVar(&demoDifficulty, "difficulty", 3, "leading zero hex digits required")
	demoCmd.Flags().IntVar(&demoWorkers, "workers", 1, "parallel search goroutines")
	demoCmd.Flags().BoolVar(&demoTamper, "tamper", false, "alter block #1 and show the failed validation")
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	miner := pow.NewMiner(pow.WithWorkers(demoWorkers))

	pterm.DefaultSection.Println("Genesis")
	chain, err := ledger.New(ctx, miner, demoDifficulty)
	if err != nil {
		return err
	}
	svc := service.New(chain, service.Config{BlockReward: 10}, zap.NewNop())

	rounds := []struct {
		miner string
		txs   []model.Transaction
	}{
		{"Miner1", []model.Transaction{
			{Sender: "Alice", Recipient: "Bob", Amount: 50},
			{Sender: "Bob", Recipient: "Charlie", Amount: 25},
		}},
		{"Miner2", []model.Transaction{
			{Sender: "Charlie", Recipient: "Dave", Amount: 10},
			{Sender: "Alice", Recipient: "Eve", Amount: 30},
		}},
	}
	for _, r := range rounds {
		pterm.DefaultSection.Println("Adding transactions")
		for _, tx := range r.txs {
			height, err := svc.AddTransaction(ctx, tx)
			if err != nil {
				return err
			}
			pterm.Info.Printfln("%s (expected in block #%d)", tx, height)
		}

		spinner, _ := pterm.DefaultSpinner.Start("mining...")
		b, err := svc.MinePending(ctx, r.miner)
		if err != nil {
			if spinner != nil {
				spinner.Fail(err.Error())
			}
			return err
		}
		if spinner != nil {
			spinner.Success(fmt.Sprintf("block #%d mined with digest %s", b.Height, b.Header.Digest))
		}
	}

	blocks, err := chain.Blocks(ctx)
	if err != nil {
		return err
	}
	pterm.DefaultSection.Println("Blockchain")
	renderChain(blocks)

	pterm.DefaultSection.Println("Validation")
	reportVerify(chain.Verify(ctx))

	if !demoTamper {
		return nil
	}
	pterm.DefaultSection.Println("Tampering")
	blocks[1].Transactions[0].Amount = 500
	pterm.Warning.Printfln("changed block #1 transaction 0 to: %s", blocks[1].Transactions[0])
	tampered, err := ledger.Load(blocks, demoDifficulty)
	if err != nil {
		return err
	}
	reportVerify(tampered.Verify(ctx))
	return nil
}

func reportVerify(err error) {
	if err == nil {
		renderValidity(true, 0, "")
		return
	}
	var v *ledger.Violation
	if errors.As(err, &v) {
		renderValidity(false, v.Height, fmt.Sprintf("%s: %s", v.Rule, v.Detail))
		return
	}
	pterm.Error.Println(err.Error())
}

// ── verify-file ──────────────────────────────────────────────────────────────

var verifyMinDifficulty int

var verifyFileCmd = &cobra.Command{
	Use:   "verify-file <chain.json>",
	Short: "Validate an exported chain offline",
	Long: `Validate a chain written by 'chainctl export'. The minimum difficulty is
the one recorded in the file unless --min-difficulty is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var chain model.Chain
		if err := json.Unmarshal(raw, &chain); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		minDifficulty := chain.Difficulty
		if cmd.Flags().Changed("min-difficulty") {
			minDifficulty = verifyMinDifficulty
		}

		if err := renderBlockTable(chain.Blocks); err != nil {
			return err
		}
		if v := ledger.Validate(chain.Blocks, minDifficulty); v != nil {
			renderValidity(false, v.Height, fmt.Sprintf("%s: %s", v.Rule, v.Detail))
			return fmt.Errorf("chain invalid at block %d", v.Height)
		}
		renderValidity(true, 0, "")
		return nil
	},
}

func init() {
	verifyFileCmd.Flags().IntVar(&verifyMinDifficulty, "min-difficulty", 0, "override the minimum difficulty recorded in the file")
}
