package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/xraph/subhub/auth"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a secp256k1 subscriber key",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
		fmt.Fprintf(out, "key:     %s\n", hexutil.Encode(crypto.FromECDSA(key)))
		return nil
	},
}

var (
	signKey     string
	signService string
	signVersion uint64
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign subscription consent for a service version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(signKey, "0x"))
		if err != nil {
			return fmt.Errorf("key: %w", err)
		}
		raw, err := hexutil.Decode(signService)
		if err != nil || len(raw) != common.HashLength {
			return fmt.Errorf("service: expected a 32-byte hex id")
		}
		serviceID := common.BytesToHash(raw)

		sig, err := auth.Sign(key, serviceID, signVersion)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "subscriber: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
		fmt.Fprintf(out, "message:    %s\n", auth.ConsentMessage(crypto.PubkeyToAddress(key.PublicKey), serviceID, signVersion).Hex())
		fmt.Fprintf(out, "signature:  %s\n", hexutil.Encode(sig))
		return nil
	},
}

func init() {
	signCmd.Flags().StringVar(&signKey, "key", "", "hex private key")
	signCmd.Flags().StringVar(&signService, "service", "", "service id (0x-prefixed, 32 bytes)")
	signCmd.Flags().Uint64Var(&signVersion, "version", 1, "service version to consent to")
	_ = signCmd.MarkFlagRequired("key")     //nolint:errcheck // flag is defined above
	_ = signCmd.MarkFlagRequired("service") //nolint:errcheck // flag is defined above
}
