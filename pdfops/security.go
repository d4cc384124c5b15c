package pdfops

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/docforge/transform"
)

// aesKeyLength is the key size for protect.
const aesKeyLength = 256

var encryptKey = []byte("/Encrypt")

// isEncrypted reports whether the trailer references an encryption
// dictionary. Trailer dictionaries are never compressed, so a byte scan is
// enough.
func isEncrypted(data []byte) bool {
	return bytes.Contains(data, encryptKey)
}

func isWrongPassword(err error) bool {
	return errors.Is(err, pdfcpu.ErrWrongPassword) || strings.Contains(strings.ToLower(err.Error()), "password")
}

func (d *Dispatcher) protect(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	f, err := primary(item)
	if err != nil {
		return transform.Result{}, err
	}
	pw := item.Params.Password
	if pw == "" {
		return transform.Result{}, transform.ValidationError("Please enter a password.")
	}
	if isEncrypted(f.Data) {
		return transform.Result{}, transform.ValidationError("This PDF is already password protected.")
	}
	if _, err := pageCount(f); err != nil {
		return transform.Result{}, err
	}

	conf := model.NewAESConfiguration(pw, pw, aesKeyLength)
	conf.Permissions = model.PermissionsPrint
	out, err := rewrite("protect", f.Data, func(rs io.ReadSeeker, w io.Writer) error {
		return api.Encrypt(rs, w, conf)
	})
	if err != nil {
		return transform.Result{}, err
	}
	return pdfResult(out), nil
}

func (d *Dispatcher) unlock(_ context.Context, item transform.WorkItem) (transform.Result, error) {
	f, err := primary(item)
	if err != nil {
		return transform.Result{}, err
	}
	if !isEncrypted(f.Data) {
		if _, err := pageCount(f); err != nil {
			return transform.Result{}, err
		}
		return pdfResult(f.Data).WithNote("The PDF was not password protected."), nil
	}

	conf := newConf()
	conf.UserPW = item.Params.Password
	conf.OwnerPW = item.Params.Password
	var buf bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(f.Data), &buf, conf); err != nil {
		if isWrongPassword(err) {
			return transform.Result{}, transform.NewError(transform.KindValidation, "Incorrect password.", err)
		}
		return transform.Result{}, transform.ParseError(f.Name+" could not be decrypted", err)
	}
	return pdfResult(buf.Bytes()), nil
}
