package spool

import (
	"encoding/json"
	"fmt"
)

// Call gives a task body access to its arguments and execution envelope.
// Arguments travel as JSON, so they are decoded into caller supplied values.
type Call struct {
	Envelope Envelope

	sig           *signature
	envelopeParam string
	args          []json.RawMessage
	kwargs        map[string]json.RawMessage
}

func newCall(t *Task, env Envelope, dec decodedArgs) *Call {
	return &Call{
		Envelope:      env,
		sig:           t.sig,
		envelopeParam: t.desc.EnvelopeParam,
		args:          dec.args,
		kwargs:        dec.kwargs,
	}
}

// NumArgs returns the number of positional arguments.
func (c *Call) NumArgs() int {
	return len(c.args)
}

// Arg decodes positional argument i into v.
func (c *Call) Arg(i int, v any) error {
	if i < 0 || i >= len(c.args) {
		return fmt.Errorf("%w: positional argument %d", ErrArgumentMissing, i)
	}
	return json.Unmarshal(c.args[i], v)
}

// Kwarg decodes keyword argument name into v. It reports false when the
// argument was not passed.
func (c *Call) Kwarg(name string, v any) (bool, error) {
	raw, ok := c.kwargs[name]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// Bind decodes every argument into v, a pointer to a struct whose json tags
// match the declared parameter names. Positional arguments are matched to
// positional parameters in declaration order, extras are collected under the
// var-positional name and unknown keywords under the var-keyword name. The
// envelope is bound under the envelope parameter name, if one is declared.
func (c *Call) Bind(v any) error {
	obj := make(map[string]json.RawMessage, len(c.args)+len(c.kwargs)+1)

	var extraArgs []json.RawMessage
	for i, raw := range c.args {
		if i < len(c.sig.positional) {
			obj[c.sig.positional[i]] = raw
			continue
		}
		extraArgs = append(extraArgs, raw)
	}
	if len(extraArgs) > 0 && c.sig.varArgs != "" {
		data, err := json.Marshal(extraArgs)
		if err != nil {
			return err
		}
		obj[c.sig.varArgs] = data
	}

	extraKwargs := make(map[string]json.RawMessage)
	for name, raw := range c.kwargs {
		if c.sig.acceptsKeyword(name) {
			obj[name] = raw
			continue
		}
		extraKwargs[name] = raw
	}

	if c.envelopeParam != "" {
		env, err := json.Marshal(c.Envelope)
		if err != nil {
			return err
		}
		if c.sig.acceptsKeyword(c.envelopeParam) {
			obj[c.envelopeParam] = env
		} else {
			extraKwargs[c.envelopeParam] = env
		}
	}

	if len(extraKwargs) > 0 && c.sig.varKwargs != "" {
		data, err := json.Marshal(extraKwargs)
		if err != nil {
			return err
		}
		obj[c.sig.varKwargs] = data
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
