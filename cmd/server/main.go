package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"gobridgecore/config"
	"gobridgecore/signature"
	"gobridgecore/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bridgecore",
	Short: "Cross-chain messenger and blob/calldata encoding optimizer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(configPath)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yml", "path of the yaml config file")
	signOrderCmd.Flags().String("key", "", "hex private key of the order user")
	signOrderCmd.MarkFlagRequired("key")

	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(signOrderCmd)
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file and print the configured chains",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		dom, _ := cfg.SignatureDomain()
		v, err := signature.NewValidator(dom, nil)
		if err != nil {
			return err
		}
		fmt.Printf("base chain %d, domain separator %s\n", cfg.BaseChainID, v.DomainSeparator().Hex())
		for i := range cfg.Chains {
			desc, _ := cfg.Chains[i].Descriptor()
			fmt.Printf("chain %d %q category=%s blob=%t endpoint=%s rpc=%d\n",
				desc.ChainID, desc.Name, desc.Category, desc.BlobEnabled, desc.BridgeEndpoint.Hex(), len(cfg.Chains[i].RPCList))
		}
		return nil
	},
}

// orderFile is the order JSON read by sign-order, amounts in decimal or hex
type orderFile struct {
	OrderID     common.Hash           `json:"orderId"`
	TreasuryID  common.Hash           `json:"treasuryId"`
	Side        string                `json:"side"`
	Amount      *math.HexOrDecimal256 `json:"amount"`
	Price       *math.HexOrDecimal256 `json:"price"`
	Expiration  uint64                `json:"expiration"`
	DestChainID uint64                `json:"destChainId"`
}

var signOrderCmd = &cobra.Command{
	Use:   "sign-order <order.json>",
	Short: "Sign an order for the configured signing domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		hexKey, _ := cmd.Flags().GetString("key")
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return fmt.Errorf("invalid private key: %w", err)
		}

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var o orderFile
		if err := json.Unmarshal(raw, &o); err != nil {
			return fmt.Errorf("cannot decode %s: %w", args[0], err)
		}
		var side types.OrderSide
		switch o.Side {
		case "buy":
			side = types.SideBuy
		case "sell":
			side = types.SideSell
		default:
			return fmt.Errorf("side must be buy or sell, got %q", o.Side)
		}

		dom, _ := cfg.SignatureDomain()
		v, err := signature.NewValidator(dom, nil)
		if err != nil {
			return err
		}
		req := &types.OrderBridgingRequest{
			OrderID:     o.OrderID,
			TreasuryID:  o.TreasuryID,
			User:        crypto.PubkeyToAddress(key.PublicKey),
			Side:        side,
			Amount:      (*big.Int)(o.Amount),
			Price:       (*big.Int)(o.Price),
			Expiration:  o.Expiration,
			DestChainID: o.DestChainID,
		}
		sig, err := v.SignOrder(key, req)
		if err != nil {
			return err
		}
		fmt.Printf("user      %s\nsignature %s\n", req.User.Hex(), hexutil.Encode(sig))
		return nil
	},
}
