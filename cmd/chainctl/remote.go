package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/pkg/client"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if apiToken != "" {
		opts = append(opts, client.WithBearerToken(apiToken))
	}
	return client.New(nodeURL, opts...)
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the node's chain height, tip and pending pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.Status(context.Background())
		if err != nil {
			return err
		}
		return pterm.DefaultTable.WithData(pterm.TableData{
			{"node", nodeURL},
			{"height", strconv.Itoa(st.Height)},
			{"tip", st.Tip.String()},
			{"difficulty", strconv.Itoa(st.Difficulty)},
			{"pending", strconv.Itoa(st.Pending)},
		}).Render()
	},
}

// ── blocks / block ───────────────────────────────────────────────────────────

var (
	blocksFrom  int
	blocksLimit int
)

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List blocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		page, err := c.Blocks(context.Background(), blocksFrom, blocksLimit)
		if err != nil {
			return err
		}
		if err := renderBlockTable(page.Blocks); err != nil {
			return err
		}
		pterm.Info.Printfln("showing %d of %d blocks from #%d", page.Count, page.Length, page.From)
		return nil
	},
}

func init() {
	blocksCmd.Flags().IntVar(&blocksFrom, "from", 0, "first height")
	blocksCmd.Flags().IntVar(&blocksLimit, "limit", 20, "page size (max 100)")
}

var blockCmd = &cobra.Command{
	Use:   "block <height>",
	Short: "Show one block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		height, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("height must be an integer: %w", err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		b, err := c.Block(context.Background(), height)
		if err != nil {
			return err
		}
		renderBlock(*b)
		return nil
	},
}

// ── validate ─────────────────────────────────────────────────────────────────

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Ask the node to validate its chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Validate(context.Background())
		if err != nil {
			return err
		}
		renderValidity(res.Valid, res.Height, res.Error)
		if !res.Valid {
			return fmt.Errorf("chain invalid at block %d", res.Height)
		}
		return nil
	},
}

// ── send / pending / mine ────────────────────────────────────────────────────

var (
	sendFrom   string
	sendTo     string
	sendAmount int64
)

var sendCmd = &cobra.Command{
	Use:   "send --from <sender> --to <recipient> --amount <n>",
	Short: "Queue a transaction on the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		tx := model.Transaction{Sender: sendFrom, Recipient: sendTo, Amount: sendAmount}
		if err := tx.Validate(); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		height, err := c.SubmitTransaction(context.Background(), tx)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("queued: %s (expected in block #%d)", tx, height)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendFrom, "from", "", "sender")
	sendCmd.Flags().StringVar(&sendTo, "to", "", "recipient")
	sendCmd.Flags().Int64Var(&sendAmount, "amount", 0, "amount")
	_ = sendCmd.MarkFlagRequired("from")
	_ = sendCmd.MarkFlagRequired("to")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List transactions waiting to be mined",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		txs, err := c.Pending(context.Background())
		if err != nil {
			return err
		}
		if len(txs) == 0 {
			pterm.Info.Println("no pending transactions")
			return nil
		}
		data := pterm.TableData{{"#", "SENDER", "RECIPIENT", "AMOUNT"}}
		for i, tx := range txs {
			data = append(data, []string{strconv.Itoa(i), tx.Sender, tx.Recipient, strconv.FormatInt(tx.Amount, 10)})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var mineMiner string

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine the pending pool into a new block",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		spinner, _ := pterm.DefaultSpinner.Start("mining...")
		b, err := c.Mine(context.Background(), mineMiner)
		if err != nil {
			if spinner != nil {
				spinner.Fail(err.Error())
			}
			return err
		}
		if spinner != nil {
			spinner.Success(fmt.Sprintf("block #%d mined", b.Height))
		}
		renderBlock(*b)
		return nil
	},
}

func init() {
	mineCmd.Flags().StringVar(&mineMiner, "miner", "", "reward address (default: the node's mining.miner_address)")
}

// ── export ───────────────────────────────────────────────────────────────────

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the whole chain as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		chain, err := c.Export(context.Background())
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(chain, "", "  ")
		if err != nil {
			return err
		}
		if exportOut == "" {
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}
		if err := os.WriteFile(exportOut, append(out, '\n'), 0o644); err != nil {
			return err
		}
		pterm.Success.Printfln("wrote %d blocks to %s", len(chain.Blocks), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write to this file instead of stdout")
}
