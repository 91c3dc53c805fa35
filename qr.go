package main

import (
	"net/http"

	qrcode "github.com/skip2/go-qrcode"
)

// qrSize is the rendered QR image edge length in pixels.
const qrSize = 256

// qrHandler renders the local npub as a QR code PNG so another device
// can scan the contact without copy-pasting bech32.
func (a *App) qrHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	npub, err := a.keys.PublicKey()
	if err != nil {
		writeCommandError(w, err)
		return
	}
	png, err := qrcode.Encode(npub, qrcode.Medium, qrSize)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
