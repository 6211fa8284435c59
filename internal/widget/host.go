package widget

// FrameSpec describes the banner frame the loader asks the host to create.
type FrameSpec struct {
	Src        string
	Style      map[string]string
	Attributes map[string]string
}

// Frame is the single banner frame owned by a Session.
type Frame interface {
	SetSrc(src string)
	Show()
	Hide()
	// Post delivers msg into the frame with the given target origin.
	Post(msg Message, targetOrigin string)
}

// Host is the embedding page: it creates frames and receives custom events.
type Host interface {
	CreateFrame(spec FrameSpec) (Frame, error)
	Dispatch(event string, detail map[string]any)
}

// frameStyle is the full-viewport overlay the banner needs.
func frameStyle() map[string]string {
	return map[string]string{
		"position":       "fixed",
		"bottom":         "0",
		"left":           "0",
		"width":          "100%",
		"height":         "100%",
		"border":         "none",
		"z-index":        "999999",
		"background":     "transparent",
		"pointer-events": "auto",
	}
}

func frameAttributes(sandbox bool) map[string]string {
	attrs := map[string]string{
		"title":      "DPDP Consent Manager",
		"aria-label": "Cookie and Privacy Consent",
	}
	if sandbox {
		attrs["sandbox"] = "allow-scripts allow-same-origin allow-forms"
	}
	return attrs
}
