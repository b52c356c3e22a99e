package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/pterm/pterm"
)

// renderBlock prints one block as a titled box.
func renderBlock(b model.Block) {
	var sb strings.Builder
	h := b.Header
	fmt.Fprintf(&sb, "Digest:        %s\n", pterm.LightGreen(h.Digest.String()))
	fmt.Fprintf(&sb, "Previous:      %s\n", h.PreviousDigest)
	fmt.Fprintf(&sb, "Merkle root:   %s\n", h.MerkleRoot)
	fmt.Fprintf(&sb, "Timestamp:     %d\n", h.Timestamp)
	fmt.Fprintf(&sb, "Nonce:         %d\n", h.Nonce)
	fmt.Fprintf(&sb, "Difficulty:    %d\n", b.Difficulty)
	fmt.Fprintf(&sb, "Transactions (%d):", b.TransactionCount)
	for _, tx := range b.Transactions {
		fmt.Fprintf(&sb, "\n  - %s", tx)
	}

	pterm.DefaultBox.
		WithTitle(pterm.LightCyan(fmt.Sprintf("|BLOCK #%d|", b.Height))).
		WithTitleTopCenter().
		WithHorizontalPadding(2).
		Println(sb.String())
}

// renderChain prints every block in height order.
func renderChain(blocks []model.Block) {
	for _, b := range blocks {
		renderBlock(b)
	}
}

// renderBlockTable prints a one-line-per-block summary.
func renderBlockTable(blocks []model.Block) error {
	data := pterm.TableData{{"HEIGHT", "DIGEST", "NONCE", "TXS", "DIFFICULTY"}}
	for _, b := range blocks {
		data = append(data, []string{
			strconv.Itoa(b.Height),
			b.Header.Digest.String(),
			strconv.FormatUint(b.Header.Nonce, 10),
			strconv.Itoa(b.TransactionCount),
			strconv.Itoa(b.Difficulty),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// renderValidity prints a validation outcome.
func renderValidity(valid bool, height int, detail string) {
	if valid {
		pterm.Success.Println("chain is valid")
		return
	}
	pterm.Error.Printfln("chain is INVALID at block #%d: %s", height, detail)
}
