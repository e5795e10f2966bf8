// Command bird is a thin driver over pkg/vm's embedding API: run a source
// file, start an interactive REPL, or print version/help. There is no
// bytecode-file persistence subcommand here (no .sg-equivalent format is
// part of this runtime) — source is always compiled fresh.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/birdlang/bird/pkg/vm"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		runREPL()
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("bird version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL()
	case "run":
		if len(os.Args) < 3 {
			fmt.Println("Error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(os.Args[2], os.Args[3:])
	default:
		runFile(os.Args[1], os.Args[2:])
	}
}

func printUsage() {
	fmt.Println("bird - a dynamically-typed scripting language")
	fmt.Println("\nUsage:")
	fmt.Println("  bird                  Start interactive REPL")
	fmt.Println("  bird [file]           Run a source file")
	fmt.Println("  bird run [file]       Run a source file")
	fmt.Println("  bird repl             Start interactive REPL")
	fmt.Println("  bird version          Show version")
	fmt.Println("  bird help             Show this help")
	fmt.Println("\nFlags accepted after the file name:")
	fmt.Println("  --trace               Print the value stack before each instruction")
	fmt.Println("  --disasm              Dump bytecode disassembly before running")
}

func runFile(filename string, flags []string) {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	v := vm.New(optionsFromFlags(flags)...)
	result, err := v.Interpret(string(data), filename)
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
	}
	if result != vm.InterpretOK {
		os.Exit(1)
	}
}

func optionsFromFlags(flags []string) []vm.Option {
	var opts []vm.Option
	for _, f := range flags {
		switch f {
		case "--trace":
			opts = append(opts, vm.WithStackTrace())
		case "--disasm":
			opts = append(opts, vm.WithBytecodeDump())
		}
	}
	return opts
}

// runREPL starts an interactive Read-Eval-Print Loop. Input is buffered
// until it ends with a ';' or '}' (the language's statement and block
// terminators), since a bare newline doesn't mark a complete statement the
// way it would in a line-oriented language.
func runREPL() {
	fmt.Printf("bird %s\n", version)
	fmt.Println("Type ':quit' or ':exit' to exit")
	fmt.Println()

	v := vm.New(vm.WithREPL())
	scanner := bufio.NewScanner(os.Stdin)

	var buf strings.Builder

	for {
		if buf.Len() == 0 {
			fmt.Print("bird> ")
		} else {
			fmt.Print("....> ")
		}

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if buf.Len() == 0 {
			switch strings.TrimSpace(line) {
			case ":quit", ":exit":
				fmt.Println("bye")
				return
			case "":
				continue
			}
		}

		buf.WriteString(line)
		buf.WriteString("\n")

		trimmed := strings.TrimSpace(buf.String())
		if !strings.HasSuffix(trimmed, ";") && !strings.HasSuffix(trimmed, "}") {
			continue
		}

		result, err := v.Interpret(trimmed, "repl")
		if err != nil {
			fmt.Fprint(os.Stderr, err.Error())
		}
		_ = result
		buf.Reset()
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
	}
}
