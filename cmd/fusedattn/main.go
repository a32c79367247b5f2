// Package main provides the fusedattn CLI.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/born-ml/fusedattn"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("fusedattn %s\n", version)
			return
		case "check":
			os.Exit(runCheck(os.Args[2:]))
		case "bench":
			os.Exit(runBench(os.Args[2:]))
		}
	}

	fmt.Println("fusedattn - Fused Multi-Head Attention CPU Operator")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  check      Run a self-check (packed vs unpacked paths)")
	fmt.Println("  bench      Benchmark the operator")
}

// fixture holds one randomly generated operator call.
type fixture struct {
	cfg     fusedattn.Config
	weights *fusedattn.RawTensor
	inputs  fusedattn.Inputs
}

func makeFixture(r *rand.Rand, batch, seq, hidden, heads int) fixture {
	randTensor := func(shape fusedattn.Shape) *fusedattn.RawTensor {
		data := make([]float32, shape.NumElements())
		for i := range data {
			data[i] = float32(r.Float64()*2 - 1)
		}
		t, err := fusedattn.FromFloat32(data, shape)
		if err != nil {
			panic(err)
		}
		return t
	}

	weights := randTensor(fusedattn.Shape{hidden, 3 * hidden})
	return fixture{
		cfg:     fusedattn.Config{NumHeads: heads, UseMergedWeights: true},
		weights: weights,
		inputs: fusedattn.Inputs{
			Input:   randTensor(fusedattn.Shape{batch, seq, hidden}),
			Weights: weights,
			Bias:    randTensor(fusedattn.Shape{3 * hidden}),
		},
	}
}

func (f fixture) run(op *fusedattn.Operator) (*fusedattn.RawTensor, error) {
	res := &fusedattn.Results{SkipPresent: true}
	err := op.Compute(&fusedattn.Call{Inputs: f.inputs, Outputs: res})
	return res.Out, err
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	batch := fs.Int("batch", 2, "batch size")
	seq := fs.Int("seq", 64, "sequence length")
	hidden := fs.Int("hidden", 256, "hidden size")
	heads := fs.Int("heads", 8, "number of heads")
	seed := fs.Int64("seed", 42, "random seed")
	fs.Parse(args)

	fmt.Printf("Self-check: batch=%d seq=%d hidden=%d heads=%d\n", *batch, *seq, *hidden, *heads)
	f := makeFixture(rand.New(rand.NewSource(*seed)), *batch, *seq, *hidden, *heads)

	plain, err := fusedattn.New(f.cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		return 1
	}
	packed, err := fusedattn.New(f.cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		return 1
	}
	if !packed.PrePack(f.weights, fusedattn.WeightsSlot, nil, nil) {
		fmt.Fprintln(os.Stderr, "pre-packing was declined")
		return 1
	}

	a, err := f.run(plain)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unpacked compute failed: %v\n", err)
		return 1
	}
	b, err := f.run(packed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "packed compute failed: %v\n", err)
		return 1
	}

	maxDiff := 0.0
	for i, v := range a.AsFloat32() {
		if d := math.Abs(float64(v - b.AsFloat32()[i])); d > maxDiff {
			maxDiff = d
		}
	}
	fmt.Printf("max |packed - unpacked| = %.3g\n", maxDiff)
	if maxDiff > 1e-4 {
		fmt.Println("FAIL")
		return 1
	}
	fmt.Println("PASS")
	return 0
}

func runBench(args []string) int {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	batch := fs.Int("batch", 1, "batch size")
	seq := fs.Int("seq", 128, "sequence length")
	hidden := fs.Int("hidden", 768, "hidden size")
	heads := fs.Int("heads", 12, "number of heads")
	iters := fs.Int("iters", 50, "iterations to time")
	usePacked := fs.Bool("packed", true, "pre-pack the weights")
	fs.Parse(args)

	fmt.Printf("Benchmark: batch=%d seq=%d hidden=%d heads=%d packed=%v\n",
		*batch, *seq, *hidden, *heads, *usePacked)
	f := makeFixture(rand.New(rand.NewSource(1)), *batch, *seq, *hidden, *heads)

	op, err := fusedattn.New(f.cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		return 1
	}
	if *usePacked && !op.PrePack(f.weights, fusedattn.WeightsSlot, nil, nil) {
		fmt.Fprintln(os.Stderr, "pre-packing was declined")
		return 1
	}

	// Warmup
	if _, err := f.run(op); err != nil {
		fmt.Fprintf(os.Stderr, "compute failed: %v\n", err)
		return 1
	}

	start := time.Now()
	for i := 0; i < *iters; i++ {
		if _, err := f.run(op); err != nil {
			fmt.Fprintf(os.Stderr, "compute failed: %v\n", err)
			return 1
		}
	}
	elapsed := time.Since(start)
	perOp := elapsed / time.Duration(*iters)

	// Projection FLOPs dominate: 2 * batch * seq * hidden * 3*hidden,
	// plus 4 * batch * heads * seq^2 * head_size for the score stage.
	headSize := *hidden / *heads
	flops := 2.0*float64(*batch)*float64(*seq)*float64(*hidden)*float64(3**hidden) +
		4.0*float64(*batch)*float64(*heads)*float64(*seq)*float64(*seq)*float64(headSize)
	gflops := flops / perOp.Seconds() / 1e9

	fmt.Printf("%d iterations in %v\n", *iters, elapsed.Round(time.Millisecond))
	fmt.Printf("%v/op, %.2f GFLOP/s\n", perOp.Round(time.Microsecond), gflops)
	return 0
}
