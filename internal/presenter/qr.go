package presenter

import (
	"github.com/cockroachdb/errors"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// QRCode renders uri as a PNG.
func QRCode(uri string) ([]byte, error) {
	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return nil, errors.Wrap(err, "create qr code")
	}
	png, err := qr.PNG(qrSize)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr png")
	}
	return png, nil
}

// TerminalQR renders uri with block characters for a terminal.
func TerminalQR(uri string) (string, error) {
	qr, err := qrcode.New(uri, qrcode.Low)
	if err != nil {
		return "", errors.Wrap(err, "create qr code")
	}
	return qr.ToSmallString(false), nil
}
