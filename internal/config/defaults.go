package config

// DefaultConfigYAML is written by `memwall init`.
const DefaultConfigYAML = `# memwall configuration
#
# Values not specified here use built-in defaults. Every key can also be
# set through the environment, e.g. MEMWALL_SERVER_PORT=9000.

log:
  level: info
  # auto, text or json
  format: auto

server:
  host: 127.0.0.1
  port: 8000
  cors_origins:
    - http://localhost:3000
    - http://localhost:5173
  # Directory for per-run event recordings. Empty disables recording.
  record_dir: ""

# Local generation backend. When disabled a scripted generator is used.
ollama:
  enabled: false
  url: http://localhost:11434
  request_timeout: 300s
  num_predict: 800
  temperature: 0.5

telemetry:
  poll_interval: 200ms
  poll_capacity: 256

scheduler:
  batch_size: 4
  # Swap growth over baseline that counts as a crash when offload is off.
  crash_threshold_gb: 2.0
  document_pacing: 500ms
  swap_hold: 1s
  max_context_tokens: 60000
  offload_by_default: false

corpus:
  # Directory with one subdirectory per category. Empty uses a synthetic corpus.
  dir: ""

session:
  enabled: true
  path: .memwall/sessions.db

costs:
  local_per_million_tokens: 0
  cloud_per_million_tokens: 10

models:
  text: llama3.1:8b
  vision: llava:13b
  catalog:
    - name: llama3.1:8b
      weights_gb: 4.7
    - name: qwen2.5:14b
      weights_gb: 9.0
    - name: llava:13b
      weights_gb: 8.0

scenarios:
  # Optional YAML file adding scenarios to the built-in catalog.
  file: ""
`
