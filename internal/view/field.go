package view

import "errors"

var ErrFieldDisabled = errors.New("field is disabled while an operation is in flight")

// FieldEditor is an inline edit control: it shows a value, becomes
// editable on Begin and hands a changed value to onChange on Commit.
type FieldEditor struct {
	value    string
	draft    string
	editing  bool
	disabled bool
	onChange func(string)
}

func NewFieldEditor(value string, disabled bool, onChange func(string)) *FieldEditor {
	return &FieldEditor{
		value:    value,
		disabled: disabled,
		onChange: onChange,
	}
}

func (f *FieldEditor) Value() string  { return f.value }
func (f *FieldEditor) Editing() bool  { return f.editing }
func (f *FieldEditor) Disabled() bool { return f.disabled }

// SetValue refreshes the displayed value. It does not touch a draft in progress.
func (f *FieldEditor) SetValue(v string) {
	f.value = v
}

// SetDisabled toggles interaction. Disabling aborts an edit in progress.
func (f *FieldEditor) SetDisabled(disabled bool) {
	f.disabled = disabled
	if disabled {
		f.editing = false
	}
}

func (f *FieldEditor) Begin() error {
	if f.disabled {
		return ErrFieldDisabled
	}
	f.editing = true
	f.draft = f.value
	return nil
}

func (f *FieldEditor) Input(v string) {
	if f.editing {
		f.draft = v
	}
}

// Commit ends editing. onChange runs only when the draft differs from the
// value; the return reports whether it ran.
func (f *FieldEditor) Commit() bool {
	if !f.editing || f.disabled {
		f.editing = false
		return false
	}
	f.editing = false
	if f.draft == f.value {
		return false
	}
	f.value = f.draft
	if f.onChange != nil {
		f.onChange(f.draft)
	}
	return true
}

func (f *FieldEditor) Cancel() {
	f.editing = false
	f.draft = ""
}

// Edit runs a full begin/input/commit cycle, the way a single form
// submission does.
func (f *FieldEditor) Edit(v string) (bool, error) {
	if err := f.Begin(); err != nil {
		return false, err
	}
	f.Input(v)
	return f.Commit(), nil
}
