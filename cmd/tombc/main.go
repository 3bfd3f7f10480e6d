// Package main provides a CLI tool for compiling TombLang source files.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/tombwork/tomblang/internal/tomblang"
)

func main() {
	inputPath := flag.String("in", "", "Path to a .tomb source file to compile")
	jsonOutput := flag.Bool("json", false, "Output the ABI as JSON instead of text")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "TombLang Compiler\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  %s -in path/to/module.tomb [-json]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	source, err := os.ReadFile(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading %s: %v\n", *inputPath, err)
		os.Exit(1)
	}

	modules, err := tomblang.Compile(string(source))
	if err != nil {
		if *jsonOutput {
			j, _ := json.Marshal(map[string]string{"error": err.Error()})
			fmt.Println(string(j))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	for _, m := range modules {
		if err := printModule(m, *jsonOutput); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func printModule(m tomblang.Module, jsonOutput bool) error {
	abi, err := tomblang.DecodeABI(m.ABI)
	if err != nil {
		return fmt.Errorf("decode ABI for %s: %w", m.Name, err)
	}

	if jsonOutput {
		j, err := json.MarshalIndent(struct {
			Name       string               `json:"name"`
			Kind       tomblang.ModuleKind  `json:"kind"`
			ScriptSize int                  `json:"scriptSize"`
			ABI        *tomblang.DecodedABI `json:"abi"`
		}{
			Name:       m.Name,
			Kind:       m.Kind,
			ScriptSize: len(m.Script),
			ABI:        abi,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(j))
	} else {
		fmt.Printf("module %s (%d bytes)\n", m.Name, len(m.Script))
		for _, meth := range abi.Methods {
			fmt.Printf("  %04x: %s(", meth.Offset, meth.Name)
			for i, p := range meth.Params {
				if i > 0 {
					fmt.Print(", ")
				}
				fmt.Printf("%s: t%d", p.Name, p.Type)
			}
			fmt.Printf(") -> t%d", meth.ReturnType)
			if meth.Trigger {
				fmt.Print(" [trigger]")
			}
			if meth.Variadic {
				fmt.Print(" [variadic]")
			}
			fmt.Println()
		}
		fmt.Println(disassemble(m.Script))
	}

	for _, sub := range m.SubModules {
		if err := printModule(sub, jsonOutput); err != nil {
			return err
		}
	}
	return nil
}

// disassemble prints a hex dump with 8-byte-per-line offsets. TombLang's
// opcode mnemonic table lives with the code generator, not this tool, so a
// hex view is what a deployer gets without pulling in codegen internals.
func disassemble(script []byte) string {
	var out string
	for i := 0; i < len(script); i += 8 {
		end := i + 8
		if end > len(script) {
			end = len(script)
		}
		out += fmt.Sprintf("  %04x: % x\n", i, script[i:end])
	}
	return out
}
