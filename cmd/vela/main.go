// Command vela is the CLI surface named in spec.md §6 ("Not part of the
// core; if present…"): a thin wrapper around pkg/vela for running and
// inspecting hand-assembled bytecode listings.
package main

import (
	"fmt"
	"os"

	"vela/pkg/object"
	"vela/pkg/value"
	"vela/pkg/vela"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(vela.ResultUnknown))
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vela",
		Short: "Vela bytecode execution engine CLI",
	}
	root.AddCommand(evalCmd(), asmCmd(), disasmCmd())
	return root
}

func evalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <file>",
		Short: "Assemble and run a bytecode listing, exiting with its result code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			v := vela.New()
			result, code := v.Eval(string(src))
			if code != vela.Success {
				fmt.Fprintln(os.Stderr, v.AllocLastErrorReport())
			} else {
				fmt.Println(describe(result))
			}
			v.Deinit()
			os.Exit(int(code))
			return nil
		},
	}
}

func asmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "asm <file.vasm>",
		Short: "Assemble and run a hand-written bytecode listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			v := vela.New()
			result, code := v.Eval(string(src))
			if code != vela.Success {
				fmt.Fprintln(os.Stderr, v.AllocLastErrorReport())
			} else {
				fmt.Println(describe(result))
			}
			gcRes := v.PerformGC()
			fmt.Fprintf(os.Stderr, "gc: %d cycle(s), %d object(s) freed, global rc = %d\n",
				gcRes.NumCycFreed, gcRes.NumObjFreed, v.GetGlobalRC())
			v.Deinit()
			os.Exit(int(code))
			return nil
		},
	}
}

func disasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <file.vasm>",
		Short: "Assemble a bytecode listing and print its disassembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			chunk, err := vela.Assemble(args[0], string(src))
			if err != nil {
				return err
			}
			fmt.Print(chunk.Disassemble())
			return nil
		},
	}
}

// describe renders a Value for terminal output: enough to eyeball a
// scenario's result (spec.md §8) without pulling in a full pretty-printer,
// which would be a scripting-language feature this engine's front end
// (out of scope) would normally own.
func describe(v value.Value) string {
	switch {
	case value.IsNone(v):
		return "none"
	case value.IsBool(v):
		return fmt.Sprintf("%t", value.AsBool(v))
	case value.IsInteger(v):
		return fmt.Sprintf("%d", value.AsInteger(v))
	case value.IsDouble(v):
		return fmt.Sprintf("%g", value.AsDouble(v))
	case value.IsPanic(v):
		return "<error>"
	case value.IsError(v):
		return fmt.Sprintf("<error %d>", value.AsErrorSymbol(v))
	case value.IsSymbol(v):
		return fmt.Sprintf("<symbol %d>", value.AsSymbol(v))
	case value.IsPointer(v):
		return fmt.Sprintf("<object typeID=%d>", typeIDOf(v))
	default:
		return "<value>"
	}
}

func typeIDOf(v value.Value) object.TypeID { return object.TypeIDOf(v) }
