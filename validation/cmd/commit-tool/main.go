package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudx-io/sealedbid/core"
	"github.com/cloudx-io/sealedbid/validation"
)

// plainTextHandler writes bare messages to stdout for CLI output
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *plainTextHandler) WithGroup(_ string) slog.Handler { return h }

var logger = slog.New(&plainTextHandler{})

func main() {
	var (
		value      = flag.String("value", "", "Bid value as a decimal amount (required)")
		decimals   = flag.Int("decimals", 18, "Decimal places of one whole unit")
		fake       = flag.Bool("fake", false, "Seal a decoy bid")
		secret     = flag.String("secret", "", "0x-prefixed 32-byte secret (generated if omitted)")
		commitment = flag.String("verify", "", "Check this commitment instead of printing one")
	)
	flag.Parse()

	if *value == "" {
		fmt.Fprintln(os.Stderr, "Usage: commit-tool --value <amount> [--decimals n] [--fake] [--secret 0x...] [--verify 0x...]")
		os.Exit(2)
	}

	if *secret == "" {
		if *commitment != "" {
			fmt.Fprintln(os.Stderr, "--verify requires --secret")
			os.Exit(2)
		}
		generated, err := core.NewSecret()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating secret: %v\n", err)
			os.Exit(2)
		}
		*secret = generated.Hex()
	}

	input := validation.CommitmentInput{
		Value:    *value,
		Decimals: int32(*decimals),
		Fake:     *fake,
		Secret:   *secret,
	}

	if *commitment != "" {
		ok, err := validation.VerifyBidCommitment(*commitment, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		if !ok {
			logger.Info("commitment: ✗ does not match")
			os.Exit(1)
		}
		logger.Info("commitment: ✓ matches")
		return
	}

	sealed, err := validation.ComputeBidCommitment(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	logger.Info(fmt.Sprintf("commitment: %s", sealed.Hex()))
	logger.Info(fmt.Sprintf("secret:     %s", *secret))
	logger.Info(fmt.Sprintf("fake:       %v", *fake))
}
