// Command corevm assembles, links and runs programs against the vm
// runtime: the teacher's flag-and-positional-file invocation
// (`gvm program.asm`), generalised onto urfave/cli/v2 so it gains real
// subcommands instead of a single implicit mode.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"corevm/internal/corelog"
	"corevm/vm"
)

func main() {
	app := &cli.App{
		Name:  "corevm",
		Usage: "assemble, link and run programs against the vm runtime",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "info, warn, error, debug"},
			&cli.BoolFlag{Name: "no-jit", Usage: "always use the interpreter, never the JIT backend"},
		},
		Commands: []*cli.Command{
			runCommand(),
			asmCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "corevm:", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "assemble and execute a program",
		ArgsUsage: "<source.asm>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("exactly one source file is required", 2)
			}
			return runSource(c.Args().First(), c.String("log-level"), c.Bool("no-jit"))
		},
	}
}

func asmCommand() *cli.Command {
	return &cli.Command{
		Name:      "asm",
		Usage:     "assemble a program and print its linked image size",
		ArgsUsage: "<source.asm>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("exactly one source file is required", 2)
			}
			src, err := os.ReadFile(c.Args().First())
			if err != nil {
				return err
			}
			logger := corelog.New(os.Stderr, c.String("log-level"))
			facade := vm.NewFacade(vm.NewStdConsole(os.Stdout, os.Stdin), vm.WithLogger(logger))
			asm := vm.NewAssembler(facade.MMU().CommandSet())
			result, err := asm.Assemble(string(src))
			if err != nil {
				return err
			}
			if err := facade.LoadAssembled(result); err != nil {
				return err
			}
			image := facade.Dump()
			fmt.Printf("%d commands, %d symbols, %d byte image\n", len(result.Code), len(result.Symbols), len(image))
			return nil
		},
	}
}

func runSource(path, logLevel string, noJIT bool) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	logger := corelog.New(os.Stderr, logLevel)
	console := vm.NewStdConsole(os.Stdout, os.Stdin)

	opts := []vm.FacadeOption{vm.WithLogger(logger)}
	if noJIT {
		opts = append(opts, vm.WithoutJIT())
	}
	facade := vm.NewFacade(console, opts...)

	asm := vm.NewAssembler(facade.MMU().CommandSet())
	result, err := asm.Assemble(string(src))
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}
	if err := facade.LoadAssembled(result); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	if err := facade.Compile(); err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	if err := facade.Exec(); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if err := console.Flush(); err != nil {
		return fmt.Errorf("flush console: %w", err)
	}
	return nil
}
