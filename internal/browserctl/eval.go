package browserctl

import (
	"encoding/json"
	"fmt"
)

// jsString JSON-encodes s for embedding in a script as a string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// jsSelectOption is called with `this` bound to a <select>. It matches by
// option value first, then by trimmed label, and throws when nothing matches.
func jsSelectOption(value string) string {
	return fmt.Sprintf(`function() {
  const want = %s;
  if (!(this instanceof HTMLSelectElement)) {
    throw new Error("element is not a <select>");
  }
  const opts = Array.from(this.options);
  const opt = opts.find(o => o.value === want) || opts.find(o => o.label.trim() === want || o.text.trim() === want);
  if (!opt) {
    throw new Error("no option " + want);
  }
  const setter = Object.getOwnPropertyDescriptor(HTMLSelectElement.prototype, "value").set;
  setter.call(this, opt.value);
  this.dispatchEvent(new Event("input", { bubbles: true }));
  this.dispatchEvent(new Event("change", { bubbles: true }));
  return opt.value;
}`, jsString(value))
}
