package graph

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// PlanPass describes one pass of an execution plan.
type PlanPass struct {
	Name     string
	Reads    []string
	Writes   []string
	Barriers []string
}

// Plan is a human-readable description of a compiled graph: pass order,
// declared accesses by name and barrier transitions. Its format is meant for
// debugging and may change.
type Plan struct {
	Images  int
	Buffers int
	Passes  []PlanPass
}

// Plan returns the execution plan of c.
func (c *Compiled) Plan() Plan {
	plan := Plan{Images: len(c.reg.images), Buffers: len(c.reg.buffers)}
	for _, p := range c.order {
		node := c.passes[p]
		pp := PlanPass{Name: node.name}
		for _, a := range node.images {
			s := fmt.Sprintf("image %q %s", c.reg.images[a.handle.index()].name, a.state)
			if a.write {
				pp.Writes = append(pp.Writes, s)
			} else {
				pp.Reads = append(pp.Reads, s)
			}
		}
		for _, a := range node.buffers {
			s := fmt.Sprintf("buffer %q %s", c.reg.buffers[a.handle.index()].name, a.state)
			if a.write {
				pp.Writes = append(pp.Writes, s)
			} else {
				pp.Reads = append(pp.Reads, s)
			}
		}
		for _, b := range c.barriers[p].Images {
			pp.Barriers = append(pp.Barriers, fmt.Sprintf("image %q: %s -> %s",
				c.reg.images[b.Image.index()].name, b.Src, b.Dst))
		}
		for _, b := range c.barriers[p].Buffers {
			pp.Barriers = append(pp.Barriers, fmt.Sprintf("buffer %q: %s -> %s",
				c.reg.buffers[b.Buffer.index()].name, b.Src, b.Dst))
		}
		plan.Passes = append(plan.Passes, pp)
	}
	return plan
}

// WritePlan writes the execution plan of c to w.
func (c *Compiled) WritePlan(w io.Writer) error {
	plan := c.Plan()
	var sb strings.Builder
	fmt.Fprintf(&sb, "render graph: %d passes, %d images, %d buffers, %d barriers\n",
		len(plan.Passes), plan.Images, plan.Buffers, c.BarrierCount())
	for i, p := range plan.Passes {
		fmt.Fprintf(&sb, "  #%d %s\n", i, p.Name)
		for _, b := range p.Barriers {
			fmt.Fprintf(&sb, "      barrier %s\n", b)
		}
		for _, r := range p.Reads {
			fmt.Fprintf(&sb, "      read    %s\n", r)
		}
		for _, wr := range p.Writes {
			fmt.Fprintf(&sb, "      write   %s\n", wr)
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// String returns the execution plan of c.
func (c *Compiled) String() string {
	var sb strings.Builder
	_ = c.WritePlan(&sb)
	return sb.String()
}

// LogPlan logs the execution plan of c at debug level, one record per pass.
// A nil l logs to the graph's logger.
func (c *Compiled) LogPlan(l *slog.Logger) {
	if l == nil {
		l = logger(c.log)
	}
	for i, p := range c.Plan().Passes {
		l.Debug("graph: plan",
			"index", i,
			"pass", p.Name,
			"reads", p.Reads,
			"writes", p.Writes,
			"barriers", p.Barriers)
	}
}
