// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

package ptzcam

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FrameResult is the outcome of one frame of EstimateFrames
type FrameResult struct {
	Sol *EstimateSol
	Err error
}

// EstimateFrames runs Estimate on independent frames in parallel, at most limit
// at a time (limit <= 0: no limit). Results are in the order of frames.
// Frames not started before ctx is done get ctx.Err() as their error, which is
// also returned.
func EstimateFrames(ctx context.Context, frames []*Correspondences, opt *EstimateOpt, limit int) ([]FrameResult, error) {
	res := make([]FrameResult, len(frames))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	var stopErr error
	for i := range frames {
		if stopErr = gctx.Err(); stopErr != nil {
			for j := i; j < len(frames); j++ {
				res[j].Err = stopErr
			}
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				res[i].Err = err
				return err
			}
			sol, err := Estimate(frames[i], opt)
			res[i] = FrameResult{Sol: sol, Err: err}
			if err != nil {
				PrintD(1, "frame %d: %v\n", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, stopErr
}
