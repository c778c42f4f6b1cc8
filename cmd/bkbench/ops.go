package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kolbv/ledgerclient/client"
	"github.com/kolbv/ledgerclient/errs"
	"github.com/kolbv/ledgerclient/wire"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:     "add [ledger] [entry] [payload]",
	Short:   "add a single entry to a ledger",
	Args:    cobra.ExactArgs(3),
	PreRunE: bindFlags,
	RunE:    runAdd,
}

var readCmd = &cobra.Command{
	Use:     "read [ledger] [entry]",
	Short:   "read a single entry from a ledger; entry may be \"last\"",
	Args:    cobra.ExactArgs(2),
	PreRunE: bindFlags,
	RunE:    runRead,
}

func runAdd(cmd *cobra.Command, args []string) error {
	ledger, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("ledger must be a number: %w", err)
	}
	entry, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("entry must be a number: %w", err)
	}
	payload := []byte(args[2])

	addr, err := serverAddress()
	if err != nil {
		return err
	}

	c := client.New(clientConfig())
	defer c.Close()

	masterKey := make([]byte, wire.MasterKeyLength)
	done := make(chan errs.Code, 1)
	c.AddEntry(addr, ledger, masterKey, entry, payload, func(code errs.Code, l wire.LedgerID, e wire.EntryID, a wire.ServerAddress, ctx interface{}) {
		done <- code
	}, nil)

	select {
	case code := <-done:
		if code != errs.OK {
			return fmt.Errorf("add failed: %s", code)
		}
		fmt.Println("add successful")
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("add timed out waiting for a response")
	}
}

func runRead(cmd *cobra.Command, args []string) error {
	ledger, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("ledger must be a number: %w", err)
	}

	var entry wire.EntryID
	if args[1] == "last" {
		entry = wire.LastAddConfirmed
	} else {
		entry, err = strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("entry must be a number or \"last\": %w", err)
		}
	}

	addr, err := serverAddress()
	if err != nil {
		return err
	}

	c := client.New(clientConfig())
	defer c.Close()

	type result struct {
		code    errs.Code
		payload []byte
	}
	done := make(chan result, 1)
	c.ReadEntry(addr, ledger, entry, func(code errs.Code, l wire.LedgerID, e wire.EntryID, payload []byte, ctx interface{}) {
		done <- result{code: code, payload: payload}
	}, nil)

	select {
	case r := <-done:
		if r.code != errs.OK {
			return fmt.Errorf("read failed: %s", r.code)
		}
		fmt.Printf("%s\n", r.payload)
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("read timed out waiting for a response")
	}
}
