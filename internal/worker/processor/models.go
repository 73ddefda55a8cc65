package processor

// Fixed names inside a job's working directory. The engine reads the two
// inputs from here and writes the video next to them.
const (
	AudioFileName  = "audio.wav"
	ImageFileName  = "image.png"
	OutputFileName = "output.mp4"
)

// Input is one job description as received from the invocation boundary.
type Input struct {
	Workflow      string
	Audio         string
	Image         string
	NetworkVolume bool
}

// Result carries exactly one of the two fields.
type Result struct {
	VideoPath   string `json:"video_path,omitempty"`
	VideoBase64 string `json:"video_base64,omitempty"`
}
