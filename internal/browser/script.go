package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	statusMissing = "missing"
	statusHidden  = "hidden"
)

// The scripts below are function expressions. rod evaluates them with
// arguments directly, chromedp gets them through callExpr.

const readyFn = `() => document.readyState === 'complete'`

const queryFn = `(sel) => Array.from(document.querySelectorAll(sel)).map((el, i) => {
	let own = '';
	el.childNodes.forEach((n) => { if (n.nodeType === Node.TEXT_NODE) own += n.textContent; });
	const tag = el.tagName.toLowerCase();
	const role = (el.getAttribute('role') || '').toLowerCase();
	return {
		index: i,
		id: el.id || '',
		label: el.getAttribute('aria-label') || '',
		value: el.getAttribute('data-answer-value') || '',
		text: (el.textContent || '').trim(),
		ownText: own.trim(),
		tag: tag,
		checked: el.getAttribute('aria-checked') === 'true' || el.checked === true,
		visible: el.offsetParent !== null,
		interactive: ['a', 'button', 'input', 'select', 'textarea'].includes(tag) ||
			['button', 'checkbox', 'radio', 'link', 'menuitem'].includes(role) ||
			el.hasAttribute('tabindex'),
	};
})`

const scrollFn = `(sel, i) => {
	const el = document.querySelectorAll(sel)[i];
	if (!el) return 'missing';
	el.scrollIntoView({ block: 'center' });
	return '';
}`

const clickFn = `(sel, i) => {
	const el = document.querySelectorAll(sel)[i];
	if (!el) return 'missing';
	if (el.offsetParent === null) return 'hidden';
	el.scrollIntoView({ block: 'center' });
	el.click();
	return '';
}`

const checkedFn = `(sel, i) => {
	const el = document.querySelectorAll(sel)[i];
	if (!el) return { status: 'missing', checked: false };
	return { status: '', checked: el.getAttribute('aria-checked') === 'true' || el.checked === true };
}`

type checkedResult struct {
	Status  string `json:"status"`
	Checked bool   `json:"checked"`
}

// callExpr turns a function expression and its arguments into a single
// expression that invokes it.
func callExpr(fn string, args ...any) (string, error) {
	encoded := make([]string, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("error encoding script argument: %v", err)
		}
		encoded = append(encoded, string(b))
	}
	return fmt.Sprintf("(%s)(%s)", fn, strings.Join(encoded, ", ")), nil
}
