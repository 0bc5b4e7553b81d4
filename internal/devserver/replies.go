package devserver

import (
	"fmt"
	"strings"

	"github.com/sdgteacher/sdgchat/internal/backend"
	"github.com/sdgteacher/sdgchat/internal/memory"
)

var tourInventory = []string{
	"A silver MacBook laptop on the desk, lid open, in good condition.",
	"A Logitech keyboard and mouse next to it, both wireless.",
	"A USB-C cable and a charging cable coiled by the monitor.",
	"A Dell monitor on an adjustable arm.",
	"An iPhone face down beside a pair of AirPods.",
	"A Samsung tablet leaning against the bookshelf.",
	"A router on the top shelf with its status lights on.",
	"A Sony speaker in the corner, plugged in but idle.",
	"A printer under the desk with a stack of paper next to it.",
	"A Nintendo Switch console in its dock under the TV.",
}

// cannedReply builds a deterministic reply shaped like the real backend's:
// long itemised inventories for tours, short observations for media, and an
// echo otherwise.
func cannedReply(req backend.ChatRequest) string {
	persona := "sustainability teacher"
	if req.Mode == backend.ModePersonalAssistant {
		persona = "personal assistant"
	}

	hasMedia := req.Image != "" || req.Video != ""
	prompt := strings.TrimSpace(req.Message + " " + req.VideoContext)

	switch {
	case memory.DetectTour(prompt, ""):
		var b strings.Builder
		fmt.Fprintf(&b, "Here's everything I noticed on this room tour, %s. Complete inventory:\n", req.Username)
		for i, item := range tourInventory {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item)
		}
		b.WriteString("Overall assessment: the electronics are well kept. Unplug the speaker and the printer when idle, ")
		b.WriteString("and keep the spare cables together so they can be reused or recycled instead of replaced.")
		return b.String()

	case hasMedia:
		kind := "image"
		if req.Video != "" {
			kind = "video"
		}
		return fmt.Sprintf("I can see a laptop and a phone charger in your %s.\n- The laptop looks in good condition.\n- The charger is plugged in with nothing attached; unplugging it saves standby power.", kind)

	case prompt == "":
		return fmt.Sprintf("Hi %s, I'm your %s. What would you like to talk about?", req.Username, persona)

	default:
		return fmt.Sprintf("(%s) You said: %s", persona, req.Message)
	}
}
