package recorder

// bindingName is the page-global function the capture script reports to.
const bindingName = "__pilotRecord"

// captureScript is installed on every document load. It reports user interaction as
// JSON payloads through the exposed binding. Input events are debounced per element.
const captureScript = `(() => {
  if (window.__pilotRecorderInstalled) return;
  window.__pilotRecorderInstalled = true;

  const DEBOUNCE_MS = 400;
  const timers = new WeakMap();
  const pending = new WeakMap();

  const cssPath = el => {
    const parts = [];
    while (el && el.nodeType === 1 && el !== document.body) {
      let part = el.tagName.toLowerCase();
      if (el.id && !/\d{4,}/.test(el.id)) { parts.unshift(part + '#' + CSS.escape(el.id)); break; }
      const parent = el.parentElement;
      if (parent) {
        const same = Array.from(parent.children).filter(c => c.tagName === el.tagName);
        if (same.length > 1) part += ':nth-of-type(' + (same.indexOf(el) + 1) + ')';
      }
      parts.unshift(part);
      el = parent;
    }
    return parts.join(' > ');
  };

  const xpath = el => {
    const parts = [];
    while (el && el.nodeType === 1) {
      let index = 1;
      for (let s = el.previousElementSibling; s; s = s.previousElementSibling) {
        if (s.tagName === el.tagName) index++;
      }
      parts.unshift(el.tagName.toLowerCase() + '[' + index + ']');
      el = el.parentElement;
    }
    return '/' + parts.join('/');
  };

  const labelOf = el => {
    if (el.labels && el.labels.length) return el.labels[0].innerText.trim();
    const wrapping = el.closest('label');
    if (wrapping) return wrapping.innerText.trim();
    const by = el.getAttribute('aria-labelledby');
    if (by) {
      const ref = document.getElementById(by);
      if (ref) return ref.innerText.trim();
    }
    return '';
  };

  const describe = el => ({
    tag: el.tagName.toLowerCase(),
    id: el.id || '',
    name: el.getAttribute('name') || '',
    testId: el.getAttribute('data-testid') || '',
    ariaLabel: el.getAttribute('aria-label') || '',
    role: el.getAttribute('role') || '',
    type: el.getAttribute('type') || '',
    placeholder: el.getAttribute('placeholder') || '',
    label: labelOf(el),
    text: (el.innerText || '').trim().slice(0, 200),
    outerHTML: el.outerHTML.slice(0, 4000),
    cssPath: cssPath(el),
    xpath: xpath(el),
  });

  const send = (type, el, extra) => {
    try {
      window.__pilotRecord(JSON.stringify(Object.assign({
        type, url: location.href, ts: Date.now(), element: el ? describe(el) : null,
      }, extra || {})));
    } catch (e) { /* binding gone */ }
  };

  const flush = el => {
    if (!pending.get(el)) return;
    clearTimeout(timers.get(el));
    pending.delete(el);
    send('input', el, { value: el.value || '' });
  };

  const target = e => {
    const el = e.target;
    if (!el || el.nodeType !== 1) return null;
    return el.closest('button, a, [role=button], input, select, textarea, label, [onclick]') || el;
  };

  document.addEventListener('click', e => {
    const el = target(e);
    if (el) send('click', el, { checked: !!el.checked });
  }, true);

  document.addEventListener('change', e => {
    const el = e.target;
    if (el && el.nodeType === 1) send('change', el, { value: el.value || '', checked: !!el.checked });
  }, true);

  document.addEventListener('input', e => {
    const el = e.target;
    if (!el || el.nodeType !== 1) return;
    clearTimeout(timers.get(el));
    pending.set(el, true);
    timers.set(el, setTimeout(() => flush(el), DEBOUNCE_MS));
  }, true);

  document.addEventListener('submit', e => {
    send('submit', e.submitter || e.target);
  }, true);

  document.addEventListener('keydown', e => {
    if (e.key === 'Enter' || e.key === 'Tab' || e.key === 'Escape') {
      if (e.target && e.target.nodeType === 1) flush(e.target);
      send('keydown', e.target && e.target.nodeType === 1 ? e.target : null, { key: e.key });
    }
  }, true);
})();`
