// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	m "github.com/mkhts/ptzcam"
)

func main() {

	// Parse command line arguments
	args, err := parseArgs()
	if err != nil {
		m.PrintE(err)
		flag.Usage()
		os.Exit(1)
	}

	// Run the main application
	if err := runApplication(args); err != nil {
		m.PrintE(err)
		os.Exit(1)
	}
}

// Main application processing
func runApplication(args cmdOpt) error {

	// Load input files
	frames, opts, err := loadInputFiles(args)
	if err != nil {
		return fmt.Errorf("failed to load input files: %w", err)
	}

	// Prepare output file
	out, err := prepareOutput(args)
	if err != nil {
		return fmt.Errorf("failed to prepare output: %w", err)
	}
	defer closeOutput(out)

	if !args.noHeader {
		printHeader(out, os.Args[0], args)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := estimateAll(ctx, frames, opts, args.jobs)
	for i, r := range results {
		printResult(out, args.inFns[i], r)
	}
	return err
}

// Load the correspondence files and build the per-file options
func loadInputFiles(args cmdOpt) ([]*m.Correspondences, []*m.EstimateOpt, error) {
	frames := make([]*m.Correspondences, len(args.inFns))
	opts := make([]*m.EstimateOpt, len(args.inFns))
	shared := newEstimateOpt(&args, args.pp.Point, args.init.pose)
	for i, fn := range args.inFns {
		in, err := loadInput(fn)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", fn, err)
		}
		frames[i] = in.Correspondences()
		opts[i] = setEstimateOpt(&args, in, shared)
		m.PrintD(1, "%s: %s\n", filepath.Base(fn), frames[i])
	}
	return frames, opts, nil
}

// Run the files sharing one option set as a batch, the others one by one
func estimateAll(ctx context.Context, frames []*m.Correspondences, opts []*m.EstimateOpt, jobs int) ([]m.FrameResult, error) {
	if sameOptions(opts) {
		return m.EstimateFrames(ctx, frames, opts[0], jobs)
	}
	results := make([]m.FrameResult, len(frames))
	for i := range frames {
		if err := ctx.Err(); err != nil {
			return results[:i], err
		}
		sol, err := m.Estimate(frames[i], opts[i])
		results[i] = m.FrameResult{Sol: sol, Err: err}
	}
	return results, nil
}

func sameOptions(opts []*m.EstimateOpt) bool {
	if len(opts) == 0 {
		return true
	}
	for _, o := range opts[1:] {
		if o != opts[0] {
			return false
		}
	}
	return true
}

// Prepare output file
func prepareOutput(args cmdOpt) (io.WriteCloser, error) {

	// Use stdout if no output file is specified
	if len(args.outFn) == 0 {
		return &nopCloser{os.Stdout}, nil
	}

	outf, err := os.Create(args.outFn)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return outf, nil
}

// Close output file
func closeOutput(out io.WriteCloser) {
	if out != nil {
		out.Close()
	}
}

// nopCloser - WriteCloser that ignores close operations
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Print output file header
func printHeader(out io.Writer, cmd string, args cmdOpt) {
	fmt.Fprintf(out, "%% program   : %s\n", filepath.Base(cmd))
	for _, fn := range args.inFns {
		fmt.Fprintf(out, "%% inp file  : %s\n", fn)
	}
	fmt.Fprintf(out, "%% pp        : %s\n", args.pp.String())
	fmt.Fprintf(out, "%%  file                  focal(px)        rx(rad)        ry(rad)        rz(rad)          cx          cy          cz  angle(deg)  stage                  iter         cost\n")
}

// Print the pose of one file
func printResult(out io.Writer, fn string, r m.FrameResult) {
	name := filepath.Base(fn)
	if r.Sol == nil || r.Sol.Pose == nil {
		fmt.Fprintf(out, "%-22s %s\n", name, failReason(r))
		return
	}
	p := r.Sol.Pose
	iter, cost := 0, 0.0
	if r.Sol.Refine != nil {
		iter, cost = r.Sol.Refine.Iter, r.Sol.Refine.Cost
	}
	fmt.Fprintf(out, "%-22s %12.4f %14.9f %14.9f %14.9f %11.4f %11.4f %11.4f %11.5f  %-20s %6d %12.6g\n",
		name, p.K.Focal, p.R.Rod.X, p.R.Rod.Y, p.R.Rod.Z, p.Center.X, p.Center.Y, p.Center.Z, m.ToDeg(p.R.Angle()),
		r.Sol.Stage, iter, cost)
	if r.Err != nil {
		fmt.Fprintf(out, "%% %s: %s\n", name, r.Err.Error())
	}
}

func failReason(r m.FrameResult) string {
	stage := "FAILED"
	if r.Sol != nil {
		stage = fmt.Sprintf("FAILED(%s)", r.Sol.FailedAt)
	}
	if r.Err == nil {
		return stage
	}
	return stage + " " + r.Err.Error()
}

// Structure to hold command line argument information
type cmdOpt struct {
	inFns      []string
	outFn      string
	noHeader   bool
	pp         ppVar
	init       poseVar
	skipRefine bool
	maxIter    int
	fTol       float64
	conicEps   float64
	wPoint     float64
	wLine      float64
	wConic     float64
	jobs       int
}

// Parse command line arguments
func parseArgs() (a cmdOpt, err error) {
	flag.Usage = func() {
		m.PrintA(`
[Usage]
	%s [Options] -pp "px py" frame1.json [frame2.json ...]

[Options]
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	rOpt := m.NewRefineOpt()
	flag.Var(&a.pp, "pp", "Principal point [px]. Enclose in quotes like -pp \"320 240\". Overrides principal_point of the input files.")
	flag.Var(&a.init, "init", "Initial guess used when the linear calibration fails. Enclose in quotes like -init \"1000 0.1 0 0 0.5 -3 5\" (focal rx ry rz cx cy cz).")
	flag.StringVar(&a.outFn, "o", "", "Output file path. If not specified, output to stdout.")
	flag.BoolVar(&a.noHeader, "nh", false, "Do not output header section.")
	flag.BoolVar(&a.skipRefine, "nr", false, "Output the linear calibration without nonlinear refinement.")
	flag.IntVar(&a.maxIter, "maxit", rOpt.LM.MaxIter, "Maximum number of Levenberg-Marquardt iterations")
	flag.Float64Var(&a.fTol, "ftol", rOpt.LM.FTol, "Convergence threshold on the relative cost reduction")
	flag.Float64Var(&a.conicEps, "eps", rOpt.ConicEpsilon, "Constant added to the squared conic distance before the square root")
	flag.Float64Var(&a.wPoint, "wp", rOpt.PointWeight, "Weight of the point residuals")
	flag.Float64Var(&a.wLine, "wl", rOpt.LineWeight, "Weight of the line residuals")
	flag.Float64Var(&a.wConic, "wc", rOpt.ConicWeight, "Weight of the conic residuals")
	flag.IntVar(&a.jobs, "j", 1, "Number of files processed in parallel. 0 for no limit.")
	var dbg int
	flag.IntVar(&dbg, "x", 0, "Debug information display. Specify level value. 0(OFF), 1(display), 2(detailed display), 3(more detailed), 4(most detailed)")
	flag.Parse()
	if flag.NArg() == 0 {
		return a, fmt.Errorf("no input file")
	}
	a.inFns = flag.Args()
	m.DBG_ = dbg
	return
}

func setRefineOpt(args *cmdOpt) *m.RefineOpt {
	opt := m.NewRefineOpt()
	opt.LM.MaxIter = args.maxIter
	opt.LM.FTol = args.fTol
	opt.ConicEpsilon = args.conicEps
	opt.PointWeight = args.wPoint
	opt.LineWeight = args.wLine
	opt.ConicWeight = args.wConic
	return opt
}

// Options of one file. Files without their own principal point or initial guess
// (or with both given on the command line) use shared.
func setEstimateOpt(args *cmdOpt, in *inputFile, shared *m.EstimateOpt) *m.EstimateOpt {
	ownPP := !args.pp.set && in.PrincipalPoint != nil
	ownInit := args.init.pose == nil && in.InitialGuess != nil
	if !ownPP && !ownInit {
		return shared
	}
	pp := args.pp.Point
	if ownPP {
		pp = r2.Point{X: in.PrincipalPoint[0], Y: in.PrincipalPoint[1]}
	}
	init := args.init.pose
	if ownInit {
		init = in.InitialGuess.Pose()
	}
	return newEstimateOpt(args, pp, init)
}

func newEstimateOpt(args *cmdOpt, pp r2.Point, init *m.CameraPose) *m.EstimateOpt {
	opt := m.NewEstimateOpt(pp)
	opt.InitialGuess = init
	opt.SkipRefine = args.skipRefine
	opt.Refine = setRefineOpt(args)
	return opt
}

//-------------------------------------------------------------------
// Flag values
//-------------------------------------------------------------------

// Principal point given as "px py"
type ppVar struct {
	r2.Point
	set bool
}

func (p *ppVar) Set(s string) error {
	v, err := parseFloats(s, 2)
	if err != nil {
		return err
	}
	p.X, p.Y, p.set = v[0], v[1], true
	return nil
}

func (p *ppVar) String() string {
	return fmt.Sprintf("%.3f %.3f", p.X, p.Y)
}

// Camera pose given as "focal rx ry rz cx cy cz"
type poseVar struct {
	pose *m.CameraPose
}

func (p *poseVar) Set(s string) error {
	v, err := parseFloats(s, m.NPARAM)
	if err != nil {
		return err
	}
	p.pose = m.PoseFromParams(v, r2.Point{})
	return nil
}

func (p *poseVar) String() string {
	if p.pose == nil {
		return ""
	}
	return p.pose.String()
}

func parseFloats(s string, n int) ([]float64, error) {
	f := strings.Fields(s)
	if len(f) != n {
		return nil, fmt.Errorf("%d values expected, got %d", n, len(f))
	}
	v := make([]float64, n)
	for i := range f {
		var err error
		v[i], err = strconv.ParseFloat(f[i], 64)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}
