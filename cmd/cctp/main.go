// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/cctp"
	"github.com/luxfi/cctp/backend"
	"github.com/luxfi/cctp/payload"
	"github.com/luxfi/cctp/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cctp",
	Short: "CCTP - Cross-domain transfer protocol CLI",
	Long: `CCTP moves messages and burn/mint token transfers between domains.

This CLI provides tools for building, attesting, and verifying cross-domain
messages, and runs the attestation service.`,
	Version: fmt.Sprintf("%s (built %s)", version, buildDate),
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(burnCmd)
	rootCmd.AddCommand(attestCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(serveCmd)

	messageCmd.AddCommand(messageEncodeCmd)
	messageCmd.AddCommand(messageDecodeCmd)
	burnCmd.AddCommand(burnEncodeCmd)
	burnCmd.AddCommand(burnDecodeCmd)
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an attester key",
	Long:  `Generate a secp256k1 attester key and print its address.`,
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("out")

		key, err := crypto.GenerateKey()
		if err != nil {
			fatalf("Key generation failed: %v", err)
		}
		keyHex := hex.EncodeToString(crypto.FromECDSA(key))
		addr := crypto.PubkeyToAddress(key.PublicKey)

		if out != "" {
			if err := os.WriteFile(out, []byte(keyHex+"\n"), 0o600); err != nil {
				fatalf("Could not write key file: %v", err)
			}
			fmt.Printf("Key written to %s\n", out)
		} else {
			fmt.Printf("Private key: %s\n", keyHex)
		}
		fmt.Printf("Attester address: %s\n", addr)
	},
}

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Build and inspect messages",
}

var messageEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode an unattested message",
	Long:  `Build a message envelope with a zero nonce, ready for attestation.`,
	Run: func(cmd *cobra.Command, args []string) {
		sourceDomain, _ := cmd.Flags().GetUint32("source-domain")
		destinationDomain, _ := cmd.Flags().GetUint32("destination-domain")
		senderHex, _ := cmd.Flags().GetString("sender")
		recipientHex, _ := cmd.Flags().GetString("recipient")
		callerHex, _ := cmd.Flags().GetString("destination-caller")
		minFinality, _ := cmd.Flags().GetUint32("min-finality")
		bodyHex, _ := cmd.Flags().GetString("body")

		sender, err := parseID(senderHex)
		if err != nil {
			fatalf("Invalid sender: %v", err)
		}
		recipient, err := parseID(recipientHex)
		if err != nil {
			fatalf("Invalid recipient: %v", err)
		}
		caller := ids.Empty
		if callerHex != "" {
			if caller, err = parseID(callerHex); err != nil {
				fatalf("Invalid destination caller: %v", err)
			}
		}
		body, err := parseHex(bodyHex)
		if err != nil {
			fatalf("Invalid body hex: %v", err)
		}

		msg, err := cctp.NewMessage(
			sourceDomain, destinationDomain, sender, recipient, caller, minFinality, body,
		)
		if err != nil {
			fatalf("Invalid message: %v", err)
		}

		fmt.Printf("Message: %x\n", msg.Bytes())
		fmt.Printf("Digest: %x\n", msg.Digest())
	},
}

var messageDecodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a serialized message",
	Run: func(cmd *cobra.Command, args []string) {
		messageHex, _ := cmd.Flags().GetString("message")

		raw, err := parseHex(messageHex)
		if err != nil {
			fatalf("Invalid message hex: %v", err)
		}
		msg, err := cctp.ParseMessage(raw)
		if err != nil {
			fatalf("Could not parse message: %v", err)
		}

		fmt.Printf("Message:\n")
		fmt.Printf("  Version: %d\n", msg.Version)
		fmt.Printf("  Source domain: %d\n", msg.SourceDomain)
		fmt.Printf("  Destination domain: %d\n", msg.DestinationDomain)
		fmt.Printf("  Nonce: %x\n", msg.Nonce)
		fmt.Printf("  Sender: %x\n", msg.Sender)
		fmt.Printf("  Recipient: %x\n", msg.Recipient)
		fmt.Printf("  Destination caller: %x\n", msg.DestinationCaller)
		fmt.Printf("  Min finality threshold: %d\n", msg.MinFinalityThreshold)
		fmt.Printf("  Finality threshold executed: %d\n", msg.FinalityThresholdExecuted)
		fmt.Printf("  Digest: %x\n", msg.Digest())

		if burn, err := payload.ParseBurnMessage(msg.Body); err == nil {
			printBurn(burn)
		} else {
			fmt.Printf("  Body: %x\n", msg.Body)
		}
	},
}

var burnCmd = &cobra.Command{
	Use:   "burn",
	Short: "Build and inspect burn message bodies",
}

var burnEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a burn message body",
	Long:  `Build the burn body carried by a deposit-for-burn message.`,
	Run: func(cmd *cobra.Command, args []string) {
		tokenHex, _ := cmd.Flags().GetString("token")
		recipientHex, _ := cmd.Flags().GetString("mint-recipient")
		amountStr, _ := cmd.Flags().GetString("amount")
		depositorHex, _ := cmd.Flags().GetString("depositor")
		maxFeeStr, _ := cmd.Flags().GetString("max-fee")
		hookHex, _ := cmd.Flags().GetString("hook")

		token, err := parseID(tokenHex)
		if err != nil {
			fatalf("Invalid token: %v", err)
		}
		recipient, err := parseID(recipientHex)
		if err != nil {
			fatalf("Invalid mint recipient: %v", err)
		}
		depositor, err := parseID(depositorHex)
		if err != nil {
			fatalf("Invalid depositor: %v", err)
		}
		amount, err := uint256.FromDecimal(amountStr)
		if err != nil {
			fatalf("Invalid amount: %v", err)
		}
		maxFee, err := uint256.FromDecimal(maxFeeStr)
		if err != nil {
			fatalf("Invalid max fee: %v", err)
		}
		hook, err := parseHex(hookHex)
		if err != nil {
			fatalf("Invalid hook hex: %v", err)
		}

		burn, err := payload.NewBurnMessage(token, recipient, amount, depositor, maxFee, hook)
		if err != nil {
			fatalf("Invalid burn message: %v", err)
		}

		fmt.Printf("Burn body: %x\n", burn.Bytes())
	},
}

var burnDecodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a burn message body",
	Run: func(cmd *cobra.Command, args []string) {
		bodyHex, _ := cmd.Flags().GetString("body")

		raw, err := parseHex(bodyHex)
		if err != nil {
			fatalf("Invalid body hex: %v", err)
		}
		burn, err := payload.ParseBurnMessage(raw)
		if err != nil {
			fatalf("Could not parse burn body: %v", err)
		}
		printBurn(burn)
	},
}

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Finalize and sign a message with local keys",
	Long: `Run a one-shot attestation: assign the nonce, stamp finality and fee
execution, and sign with the given keys in attester order.`,
	Run: func(cmd *cobra.Command, args []string) {
		messageHex, _ := cmd.Flags().GetString("message")
		keyHexes, _ := cmd.Flags().GetStringArray("key")
		finality, _ := cmd.Flags().GetUint32("finality")
		feeStr, _ := cmd.Flags().GetString("fee")
		expiryWindow, _ := cmd.Flags().GetUint64("expiry-window")

		raw, err := parseHex(messageHex)
		if err != nil {
			fatalf("Invalid message hex: %v", err)
		}
		signers, err := parseSigners(keyHexes)
		if err != nil {
			fatalf("Invalid key: %v", err)
		}
		fee, err := uint256.FromDecimal(feeStr)
		if err != nil {
			fatalf("Invalid fee: %v", err)
		}

		svc, err := service.New(service.Config{
			FinalityThreshold: finality,
			Fee:               fee,
			ExpiryWindow:      expiryWindow,
		}, log.NoLog{}, signers, backend.NewMemoryBackend(), nil, nil)
		if err != nil {
			fatalf("Could not build attestation service: %v", err)
		}

		record, err := svc.Attest(context.Background(), raw)
		if err != nil {
			fatalf("Attestation failed: %v", err)
		}
		msg, err := cctp.ParseMessage(record.Message)
		if err != nil {
			fatalf("Could not parse attested message: %v", err)
		}

		fmt.Printf("Message: %x\n", record.Message)
		fmt.Printf("Attestation: %x\n", record.Attestation)
		fmt.Printf("Event nonce: %x\n", msg.Nonce)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify an attestation",
	Long:  `Verify an attestation against a set of enabled attester addresses.`,
	Run: func(cmd *cobra.Command, args []string) {
		messageHex, _ := cmd.Flags().GetString("message")
		attestationHex, _ := cmd.Flags().GetString("attestation")
		attesterHexes, _ := cmd.Flags().GetStringArray("attester")
		threshold, _ := cmd.Flags().GetInt("threshold")

		raw, err := parseHex(messageHex)
		if err != nil {
			fatalf("Invalid message hex: %v", err)
		}
		msg, err := cctp.ParseMessage(raw)
		if err != nil {
			fatalf("Could not parse message: %v", err)
		}
		attestation, err := parseHex(attestationHex)
		if err != nil {
			fatalf("Invalid attestation hex: %v", err)
		}

		addrs := make([]common.Address, len(attesterHexes))
		for i, a := range attesterHexes {
			if !common.IsHexAddress(a) {
				fatalf("Invalid attester address: %s", a)
			}
			addrs[i] = common.HexToAddress(a)
		}
		attesters, err := cctp.NewAttesterSet(addrs, threshold)
		if err != nil {
			fatalf("Invalid attester set: %v", err)
		}

		verifier := cctp.NewAttestationVerifier(attesters, nil)
		if err := verifier.Verify(context.Background(), msg, attestation); err != nil {
			fatalf("Attestation invalid: %v", err)
		}
		fmt.Printf("Attestation valid: %d signatures at threshold %d\n",
			len(attestation)/cctp.SignatureLen, threshold)
	},
}

func init() {
	// Keygen command flags
	keygenCmd.Flags().StringP("out", "o", "", "Write the private key to this file instead of stdout")

	// Message encode command flags
	messageEncodeCmd.Flags().Uint32("source-domain", 0, "Source domain")
	messageEncodeCmd.Flags().Uint32("destination-domain", 0, "Destination domain")
	messageEncodeCmd.Flags().String("sender", "", "Sender identity (hex, 32 or 20 bytes)")
	messageEncodeCmd.Flags().String("recipient", "", "Recipient identity (hex, 32 or 20 bytes)")
	messageEncodeCmd.Flags().String("destination-caller", "", "Destination caller identity (optional)")
	messageEncodeCmd.Flags().Uint32("min-finality", cctp.FinalityThresholdFinalized, "Minimum finality threshold")
	messageEncodeCmd.Flags().String("body", "", "Message body (hex)")
	messageEncodeCmd.MarkFlagRequired("sender")
	messageEncodeCmd.MarkFlagRequired("recipient")

	// Message decode command flags
	messageDecodeCmd.Flags().StringP("message", "m", "", "Serialized message (hex)")
	messageDecodeCmd.MarkFlagRequired("message")

	// Burn encode command flags
	burnEncodeCmd.Flags().String("token", "", "Burn token identity (hex)")
	burnEncodeCmd.Flags().String("mint-recipient", "", "Mint recipient identity (hex)")
	burnEncodeCmd.Flags().String("amount", "", "Amount to burn (decimal)")
	burnEncodeCmd.Flags().String("depositor", "", "Depositor identity (hex)")
	burnEncodeCmd.Flags().String("max-fee", "0", "Maximum fee the depositor accepts (decimal)")
	burnEncodeCmd.Flags().String("hook", "", "Hook data for the destination (hex, optional)")
	burnEncodeCmd.MarkFlagRequired("token")
	burnEncodeCmd.MarkFlagRequired("mint-recipient")
	burnEncodeCmd.MarkFlagRequired("amount")
	burnEncodeCmd.MarkFlagRequired("depositor")

	// Burn decode command flags
	burnDecodeCmd.Flags().StringP("body", "b", "", "Burn body (hex)")
	burnDecodeCmd.MarkFlagRequired("body")

	// Attest command flags
	attestCmd.Flags().StringP("message", "m", "", "Serialized message (hex)")
	attestCmd.Flags().StringArrayP("key", "k", nil, "Attester private key (hex), repeatable")
	attestCmd.Flags().Uint32("finality", cctp.FinalityThresholdFinalized, "Finality level to attest at")
	attestCmd.Flags().String("fee", "0", "Fee charged on burn bodies (decimal)")
	attestCmd.Flags().Uint64("expiry-window", 0, "Blocks until attested burns expire (0 = never)")
	attestCmd.MarkFlagRequired("message")
	attestCmd.MarkFlagRequired("key")

	// Verify command flags
	verifyCmd.Flags().StringP("message", "m", "", "Serialized message (hex)")
	verifyCmd.Flags().StringP("attestation", "a", "", "Attestation (hex)")
	verifyCmd.Flags().StringArray("attester", nil, "Enabled attester address, repeatable")
	verifyCmd.Flags().IntP("threshold", "t", 1, "Signature threshold")
	verifyCmd.MarkFlagRequired("message")
	verifyCmd.MarkFlagRequired("attestation")
	verifyCmd.MarkFlagRequired("attester")
}

func printBurn(burn *payload.BurnMessage) {
	fmt.Printf("Burn body:\n")
	fmt.Printf("  Version: %d\n", burn.Version)
	fmt.Printf("  Burn token: %x\n", burn.BurnToken)
	fmt.Printf("  Mint recipient: %x\n", burn.MintRecipient)
	fmt.Printf("  Amount: %s\n", burn.Amount.Dec())
	fmt.Printf("  Message sender: %x\n", burn.MessageSender)
	fmt.Printf("  Max fee: %s\n", burn.MaxFee.Dec())
	fmt.Printf("  Fee executed: %s\n", burn.FeeExecuted.Dec())
	fmt.Printf("  Expiration block: %s\n", burn.ExpirationBlock.Dec())
	if burn.HasHook() {
		fmt.Printf("  Hook data: %x\n", burn.HookData)
	}
}

func parseSigners(keyHexes []string) ([]cctp.Signer, error) {
	signers := make([]cctp.Signer, len(keyHexes))
	for i, keyHex := range keyHexes {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
		if err != nil {
			return nil, err
		}
		signers[i] = cctp.NewSigner(key)
	}
	return signers, nil
}

// parseID reads a hex identity: 32 bytes taken verbatim, 20-byte addresses
// left-padded into the low bytes.
func parseID(hexStr string) (ids.ID, error) {
	raw, err := parseHex(hexStr)
	if err != nil {
		return ids.Empty, err
	}
	switch len(raw) {
	case ids.IDLen:
		return ids.ToID(raw)
	case common.AddressLength:
		return cctp.AddressToBytes32(common.BytesToAddress(raw)), nil
	default:
		return ids.Empty, fmt.Errorf("identity must be %d or %d bytes, got %d",
			ids.IDLen, common.AddressLength, len(raw))
	}
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
