//go:build !whisper

package doctor

func checkPortAudio() Result {
	return Result{Name: "audio input", Pass: false, Detail: "built without -tags whisper; rebuild to use local capture"}
}
