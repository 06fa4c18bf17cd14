// Package device owns the audio capture handle. It opens the first working
// device from a prioritised candidate list, negotiates mono S16LE capture near
// the requested rate, and recovers from driver read errors by resynchronising
// the stream. The PortAudio backend lives in the portaudio subpackage.
package device
