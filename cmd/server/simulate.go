package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zucenko/rescuegrid/engine"
	"github.com/zucenko/rescuegrid/model"
)

type simulateOptions struct {
	agents, survivors, obstacles int
	size, exits                  int
	seed                         int64
	runs, workers                int
	maxTicks                     int
	layout                       string
	render, jsonOutput           bool
}

func simulateCmd(root *rootOptions) *cobra.Command {
	o := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run missions headless and print their reports",
		Long: "simulate generates missions from the flags (or loads one from --layout) and ticks\n" +
			"every agent until the mission completes or --max-ticks is reached.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if o.size == 0 {
				o.size = cfg.Mission.Size
			}
			if o.exits == 0 {
				o.exits = cfg.Mission.Exits
			}
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.agents, "agents", 2, "number of agents")
	f.IntVar(&o.survivors, "survivors", 3, "number of survivors")
	f.IntVar(&o.obstacles, "obstacles", 10, "number of obstacles")
	f.IntVar(&o.size, "size", 0, "grid size (default from config)")
	f.IntVar(&o.exits, "exits", 0, "number of exits (default from config)")
	f.Int64Var(&o.seed, "seed", 0, "seed of the first run; 0 derives one from the clock")
	f.IntVar(&o.runs, "runs", 1, "number of missions")
	f.IntVar(&o.workers, "workers", 8, "missions simulated in parallel")
	f.IntVar(&o.maxTicks, "max-ticks", 0, "give up after this many ticks (default 4*size*size)")
	f.StringVar(&o.layout, "layout", "", "text layout file to run instead of a generated grid")
	f.BoolVar(&o.render, "render", false, "draw the grid after every tick")
	f.BoolVar(&o.jsonOutput, "json", false, "output as JSON")
	return cmd
}

func runSimulate(ctx context.Context, out io.Writer, o *simulateOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.runs < 1 || o.workers < 1 {
		return fmt.Errorf("runs and workers must be at least 1")
	}
	if o.layout != "" && o.runs > 1 {
		return fmt.Errorf("--layout runs a single mission")
	}
	seed := engine.ResolveSeed(o.seed)

	if o.runs == 1 {
		var onTick func(*engine.View)
		if o.render && !o.jsonOutput {
			onTick = func(v *engine.View) { fmt.Fprintln(out, renderView(v)) }
		}
		var r model.MissionReport
		var err error
		if o.layout != "" {
			r, err = runLayout(ctx, o.layout, o.maxTicks, onTick)
		} else {
			r, err = runMission(ctx, o.params(), seed, o.maxTicks, onTick)
		}
		if err != nil {
			return err
		}
		if o.jsonOutput {
			return writeIndented(out, r)
		}
		printReport(out, r)
		return nil
	}

	s := runBatch(ctx, o.params(), seed, o.runs, o.workers, o.maxTicks)
	if o.jsonOutput {
		return writeIndented(out, s)
	}
	printBatch(out, s)
	return nil
}

func (o *simulateOptions) params() engine.Params {
	return engine.Params{
		Size:      o.size,
		Agents:    o.agents,
		Survivors: o.survivors,
		Obstacles: o.obstacles,
		Exits:     o.exits,
	}
}

// runMission generates a mission from seed and ticks it to the end.
func runMission(ctx context.Context, p engine.Params, seed int64, maxTicks int, onTick func(*engine.View)) (model.MissionReport, error) {
	g, agents, err := engine.Generate(engine.NewRand(seed), p)
	if err != nil {
		return model.MissionReport{}, fmt.Errorf("seed %d: %w", seed, err)
	}
	return play(ctx, fmt.Sprintf("sim-%d", seed), seed, g, agents, maxTicks, onTick)
}

func runLayout(ctx context.Context, path string, maxTicks int, onTick func(*engine.View)) (model.MissionReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.MissionReport{}, err
	}
	defer f.Close()
	g, agents, err := engine.ParseLayout(f)
	if err != nil {
		return model.MissionReport{}, fmt.Errorf("%s: %w", path, err)
	}
	return play(ctx, "layout", 0, g, agents, maxTicks, onTick)
}

func play(ctx context.Context, id string, seed int64, g *engine.Grid, agents []*engine.Agent, maxTicks int, onTick func(*engine.View)) (model.MissionReport, error) {
	if maxTicks <= 0 {
		maxTicks = 4 * g.Size * g.Size
	}
	s := engine.NewSession()
	if err := s.Reset(g, agents); err != nil {
		return model.MissionReport{}, err
	}
	v, err := s.Snapshot()
	if err != nil {
		return model.MissionReport{}, err
	}
	if onTick != nil {
		onTick(v)
	}
	for !v.Complete && v.Tick < maxTicks {
		if err := ctx.Err(); err != nil {
			return model.MissionReport{}, err
		}
		if v, err = s.Tick(ctx); err != nil {
			return model.MissionReport{}, err
		}
		if onTick != nil {
			onTick(v)
		}
	}
	r, err := s.Report()
	if err != nil {
		return model.MissionReport{}, err
	}
	return model.NewMissionReport(id, seed, g.Size, len(agents), r), nil
}

type batchSummary struct {
	Runs       int     `json:"runs"`
	Completed  int     `json:"completed"`
	Failed     int     `json:"failed"`
	Survivors  int     `json:"survivors"`
	Delivered  int     `json:"delivered"`
	Stranded   int     `json:"stranded"`
	Stalled    int     `json:"stalled_agents"`
	AvgTicks   float64 `json:"avg_ticks"`
	AvgSteps   float64 `json:"avg_total_steps"`
	FirstSeed  int64   `json:"first_seed"`
	Capacity   int     `json:"capacity_errors"`
	sumTicks   int
	sumSteps   int
	finishedOK int
}

// runBatch runs missions seed, seed+1, ... on a pool of workers. Run i
// always uses seed+i, so results do not depend on the worker count.
func runBatch(ctx context.Context, p engine.Params, seed int64, runs, workers int, maxTicks int) batchSummary {
	st := batchSummary{Runs: runs, FirstSeed: seed}
	var mu sync.Mutex
	wg := sync.WaitGroup{}
	jobs := make(chan int, runs)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				r, err := runMission(ctx, p, seed+int64(i), maxTicks, nil)

				mu.Lock()
				if err != nil {
					st.Failed++
					if errors.Is(err, engine.ErrCapacity) {
						st.Capacity++
					}
					log.WithFields(log.Fields{"worker": workerID, "run": i}).WithError(err).Debug("simulation failed")
					mu.Unlock()
					continue
				}
				st.finishedOK++
				if r.Complete {
					st.Completed++
				}
				st.Survivors += r.Survivors
				st.Delivered += r.Delivered
				st.Stranded += len(r.Stranded)
				st.Stalled += len(r.Stalled)
				st.sumTicks += r.Tick
				st.sumSteps += r.TotalSteps
				mu.Unlock()
			}
		}(w)
	}
	for i := 0; i < runs; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if st.finishedOK > 0 {
		st.AvgTicks = float64(st.sumTicks) / float64(st.finishedOK)
		st.AvgSteps = float64(st.sumSteps) / float64(st.finishedOK)
	}
	return st
}

func writeIndented(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(out io.Writer, r model.MissionReport) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "MISSION\t%s\n", r.MissionID)
	fmt.Fprintf(tw, "SEED\t%d\n", r.Seed)
	fmt.Fprintf(tw, "COMPLETE\t%v\n", r.Complete)
	fmt.Fprintf(tw, "TICKS\t%d\n", r.Tick)
	fmt.Fprintf(tw, "DELIVERED\t%d/%d\n", r.Delivered, r.Survivors)
	fmt.Fprintf(tw, "STRANDED\t%v\n", r.Stranded)
	fmt.Fprintf(tw, "STALLED AGENTS\t%v\n", r.Stalled)
	fmt.Fprintf(tw, "TOTAL STEPS\t%d\n", r.TotalSteps)
	tw.Flush()
}

func printBatch(out io.Writer, s batchSummary) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUNS\tCOMPLETE\tFAILED\tDELIVERED\tSTRANDED\tSTALLED\tAVG TICKS\tAVG STEPS")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d/%d\t%d\t%d\t%.1f\t%.1f\n",
		s.Runs, s.Completed, s.Failed, s.Delivered, s.Survivors, s.Stranded, s.Stalled, s.AvgTicks, s.AvgSteps)
	tw.Flush()
}
