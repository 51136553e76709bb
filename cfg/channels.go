package cfg

import (
	"sort"

	"github.com/onemanifold/choreo/protocol"
)

// Channel identifies a communication over a directed channel with a label:
// the (sender, receiver, label) triple of the combining operator's
// disjointness check.
type Channel struct {
	Sender   protocol.Role `json:"sender" yaml:"sender"`
	Receiver protocol.Role `json:"receiver" yaml:"receiver"`
	Label    string        `json:"label" yaml:"label"`
}

func (c Channel) String() string {
	return "(" + string(c.Sender) + ", " + string(c.Receiver) + ", " + c.Label + ")"
}

// Channels collects every channel the graph's message actions drive, sorted
// for deterministic reporting. Multicasts contribute one channel per
// receiver.
func (g *Graph) Channels() []Channel {
	seen := map[Channel]bool{}
	var out []Channel
	for _, n := range g.nodes {
		msg, ok := n.Action.(*MessageAction)
		if !ok {
			continue
		}
		for _, to := range msg.To {
			ch := Channel{Sender: msg.From, Receiver: to, Label: msg.Label}
			if !seen[ch] {
				seen[ch] = true
				out = append(out, ch)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sender != out[j].Sender {
			return out[i].Sender < out[j].Sender
		}
		if out[i].Receiver != out[j].Receiver {
			return out[i].Receiver < out[j].Receiver
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// ChannelIntersection returns the channels driven by both graphs.
func ChannelIntersection(a, b *Graph) []Channel {
	inA := map[Channel]bool{}
	for _, ch := range a.Channels() {
		inA[ch] = true
	}
	var out []Channel
	for _, ch := range b.Channels() {
		if inA[ch] {
			out = append(out, ch)
		}
	}
	return out
}
